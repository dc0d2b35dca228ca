package directory

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the access-token claims the client cares about. The token
// is issued and signature-checked server-side; the client decodes the payload
// without verification, the way device clients read their own tokens.
type TokenClaims struct {
	UserID    string
	Email     string
	Name      string
	ExpiresAt time.Time
}

type accessTokenClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// ParseTokenClaims decodes the payload of a JWT access token without
// verifying its signature.
func ParseTokenClaims(token string) (*TokenClaims, error) {
	parser := jwt.NewParser()

	claims := &accessTokenClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}

	parsed := &TokenClaims{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   claims.Name,
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}

	return parsed, nil
}

// Expired reports whether the token has passed its expiry. Tokens without an
// exp claim never expire client-side.
func (c *TokenClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
