package session

import (
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"servicemarket/internal/domain"
)

// Claims mirrors the access token payload issued by the backend.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	Name   string `json:"name,omitempty"`
	jwtlib.RegisteredClaims
}

// FromTokens builds a session from a token pair. The signature is not verified:
// the client cannot hold the signing secret, the backend verifies every request.
func FromTokens(pair domain.TokenPair) (domain.Session, error) {
	var claims Claims
	if _, _, err := jwtlib.NewParser().ParseUnverified(pair.AccessToken, &claims); err != nil {
		return domain.Session{}, fmt.Errorf("parse access token: %w", err)
	}

	role := domain.UserRole(claims.Role)
	if claims.UserID <= 0 || !role.Valid() {
		return domain.Session{}, fmt.Errorf("access token carries no valid identity: %w", domain.ErrUnauthorized)
	}

	return domain.Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UserID:       claims.UserID,
		Role:         role,
		Name:         claims.Name,
	}, nil
}
