package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"stepleague/internal/platform/logger"
)

// LocalStore keeps objects on disk and serves them back through the API.
type LocalStore struct {
	root    string
	baseURL string
}

func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", root, err)
	}
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Put(ctx context.Context, objectPath, contentType string, body io.Reader) error {
	clean, err := CleanPath(objectPath)
	if err != nil {
		return err
	}
	dest := s.FilePath(clean)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("LocalStore.Put mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return fmt.Errorf("LocalStore.Put temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("LocalStore.Put write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("LocalStore.Put close: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("LocalStore.Put rename: %w", err)
	}
	logger.Debug("stored proof %s (%s)", clean, contentType)
	return nil
}

func (s *LocalStore) Delete(ctx context.Context, objectPath string) error {
	clean, err := CleanPath(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(s.FilePath(clean)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("LocalStore.Delete: %w", err)
	}
	return nil
}

func (s *LocalStore) URL(objectPath string) string {
	return s.baseURL + "/api/v1/uploads/object/" + strings.TrimPrefix(objectPath, "/")
}

// FilePath maps an already-cleaned object path onto disk.
func (s *LocalStore) FilePath(clean string) string {
	return filepath.Join(s.root, filepath.FromSlash(clean))
}
