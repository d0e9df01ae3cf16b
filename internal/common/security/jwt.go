package security

import (
	"errors"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and validates bearer tokens and signed upload tokens.
type TokenService struct {
	auth      *jwtauth.JWTAuth
	ttl       time.Duration
	uploadTTL time.Duration
	clock     func() time.Time
}

func NewTokenService(secret []byte, ttl, uploadTTL time.Duration) *TokenService {
	return &TokenService{
		auth:      jwtauth.New("HS256", secret, nil),
		ttl:       ttl,
		uploadTTL: uploadTTL,
		clock:     time.Now,
	}
}

// JWTAuth exposes the verifier used by the router middleware.
func (s *TokenService) JWTAuth() *jwtauth.JWTAuth {
	return s.auth
}

func (s *TokenService) GenerateToken(userID, role string) (string, error) {
	now := s.clock()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     now.Add(s.ttl).Unix(),
		"iat":     now.Unix(),
	}
	_, tokenString, err := s.auth.Encode(claims)
	return tokenString, err
}

// Helper functions to extract claims, can be used in middleware or services
func GetUserIDFromClaims(claims map[string]interface{}) (string, error) {
	id, ok := claims["user_id"].(string)
	if !ok {
		return "", errors.New("user_id claim is missing or not a string")
	}
	return id, nil
}

func GetUserRoleFromClaims(claims map[string]interface{}) (string, error) {
	role, ok := claims["role"].(string)
	if !ok {
		return "", errors.New("role claim is missing or not a string")
	}
	return role, nil
}
