package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var ErrInvalidPath = errors.New("invalid object path")

// ProofStore persists proof images under caller-chosen relative paths.
type ProofStore interface {
	Put(ctx context.Context, objectPath, contentType string, body io.Reader) error
	Delete(ctx context.Context, objectPath string) error
	// URL is where the verifier and clients can fetch the object.
	URL(objectPath string) string
}

// CleanPath normalizes an object path and rejects anything escaping the store root.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean("/" + p)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(p, "/") || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}

// UserPrefix is the directory every proof uploaded by userID lives under.
func UserPrefix(userID string) string {
	return "proofs/" + userID + "/"
}

// ProofPath is the object path for one user's proof image.
func ProofPath(userID, objectID, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("%s%s.%s", UserPrefix(userID), objectID, ext)
}
