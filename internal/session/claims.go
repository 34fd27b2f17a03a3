// Package session holds the authenticated identity of the terminal user:
// token decoding, persistence, expiry and role gating.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joss/fedcli/internal/domain"
)

// Claims are the JWT claims issued by the federation backend.
// Subject carries the e-mail address.
type Claims struct {
	UserID string      `json:"id"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

var (
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrExpired       = errors.New("session expired")
	ErrForbiddenRole = errors.New("access denied for role")
	ErrMalformed     = errors.New("malformed token")
)

// DecodeClaims reads the claims without verifying the signature. The client
// never holds the signing key; the backend verifies every request.
func DecodeClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing id claim", ErrMalformed)
	}
	return claims, nil
}

// Expired reports whether the token is past its exp claim at now.
// Tokens without exp are treated as expired.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return c.ExpiresAt.UnixMilli() < now.UnixMilli()
}

// Email returns the subject claim.
func (c *Claims) Email() string {
	return c.Subject
}
