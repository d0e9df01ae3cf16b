package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"stepleague/internal/common"
	"stepleague/internal/common/security"
	"stepleague/internal/platform/logger"
	"stepleague/internal/platform/storage"
)

var allowedProofTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

type UploadService struct {
	tokens  *security.TokenService
	store   storage.ProofStore
	baseURL string
	maxSize int64
}

func NewUploadService(tokens *security.TokenService, store storage.ProofStore, publicBaseURL string, maxSize int64) *UploadService {
	return &UploadService{
		tokens:  tokens,
		store:   store,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		maxSize: maxSize,
	}
}

type SignUploadRequest struct {
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type SignUploadResponse struct {
	UploadURL string `json:"upload_url"`
	Path      string `json:"path"`
}

// SignUpload reserves an object path for the caller and returns a PUT URL for it.
// The URL stays valid until its token expires; each PUT replaces the same object.
func (s *UploadService) SignUpload(ctx context.Context, userID string, req SignUploadRequest) (*SignUploadResponse, error) {
	ext, ok := allowedProofTypes[strings.ToLower(req.ContentType)]
	if !ok {
		return nil, fmt.Errorf("unsupported content type %q: %w", req.ContentType, common.ErrValidation)
	}
	if req.Size <= 0 {
		return nil, fmt.Errorf("size is required: %w", common.ErrBadRequest)
	}
	if req.Size > s.maxSize {
		return nil, fmt.Errorf("file is %d bytes, the limit is %d: %w", req.Size, s.maxSize, common.ErrValidation)
	}

	objectPath := storage.ProofPath(userID, uuid.NewString(), ext)
	token, err := s.tokens.SignUpload(security.UploadGrant{
		UserID:      userID,
		Path:        objectPath,
		ContentType: strings.ToLower(req.ContentType),
	})
	if err != nil {
		return nil, err
	}
	return &SignUploadResponse{
		UploadURL: s.baseURL + "/api/v1/uploads/object?token=" + url.QueryEscape(token),
		Path:      objectPath,
	}, nil
}

// StoreObject writes the body authorized by an upload token.
func (s *UploadService) StoreObject(ctx context.Context, token, contentType string, body io.Reader) (string, error) {
	grant, err := s.tokens.VerifyUpload(token)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, common.ErrUnauthorized)
	}
	if ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])); ct != "" && ct != grant.ContentType {
		return "", fmt.Errorf("content type %q does not match signed %q: %w", ct, grant.ContentType, common.ErrValidation)
	}

	lr := &io.LimitedReader{R: body, N: s.maxSize + 1}
	if err := s.store.Put(ctx, grant.Path, grant.ContentType, lr); err != nil {
		if errors.Is(err, storage.ErrInvalidPath) {
			return "", fmt.Errorf("%v: %w", err, common.ErrValidation)
		}
		return "", common.Errorf("failed to store proof: %w", err)
	}
	if lr.N <= 0 {
		if derr := s.store.Delete(ctx, grant.Path); derr != nil {
			logger.Error("failed to remove oversized upload %s: %v", grant.Path, derr)
		}
		return "", fmt.Errorf("file exceeds %d bytes: %w", s.maxSize, common.ErrValidation)
	}

	logger.Info("proof uploaded to %s by %s", grant.Path, grant.UserID)
	return grant.Path, nil
}

func (s *UploadService) URL(objectPath string) string {
	return s.store.URL(objectPath)
}
