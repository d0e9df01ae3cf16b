package security

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-chi/jwtauth/v5"
)

const uploadScope = "proof_upload"

var ErrInvalidUploadToken = errors.New("invalid upload token")

// UploadGrant is what a signed upload URL authorizes: one object path and content type.
type UploadGrant struct {
	UserID      string
	Path        string
	ContentType string
}

func (s *TokenService) SignUpload(g UploadGrant) (string, error) {
	now := s.clock()
	claims := map[string]interface{}{
		"scope":        uploadScope,
		"user_id":      g.UserID,
		"path":         g.Path,
		"content_type": g.ContentType,
		"exp":          now.Add(s.uploadTTL).Unix(),
		"iat":          now.Unix(),
	}
	_, token, err := s.auth.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("sign upload token: %w", err)
	}
	return token, nil
}

func (s *TokenService) VerifyUpload(token string) (UploadGrant, error) {
	t, err := jwtauth.VerifyToken(s.auth, token)
	if err != nil {
		return UploadGrant{}, fmt.Errorf("%w: %v", ErrInvalidUploadToken, err)
	}
	claims, err := t.AsMap(context.Background())
	if err != nil {
		return UploadGrant{}, fmt.Errorf("%w: %v", ErrInvalidUploadToken, err)
	}
	if scope, _ := claims["scope"].(string); scope != uploadScope {
		return UploadGrant{}, fmt.Errorf("%w: wrong scope", ErrInvalidUploadToken)
	}
	g := UploadGrant{}
	g.UserID, _ = claims["user_id"].(string)
	g.Path, _ = claims["path"].(string)
	g.ContentType, _ = claims["content_type"].(string)
	if g.Path == "" {
		return UploadGrant{}, fmt.Errorf("%w: missing path", ErrInvalidUploadToken)
	}
	return g, nil
}
