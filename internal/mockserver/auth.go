package mockserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/session"
)

// DefaultTokenTTL is the lifetime of issued tokens.
const DefaultTokenTTL = 24 * time.Hour

type contextKey string

const userContextKey contextKey = "user"

// issuer signs and verifies HS256 tokens carrying session.Claims.
type issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (i *issuer) issue(u domain.User) (string, error) {
	base := u.Base()
	now := i.now()
	claims := session.Claims{
		UserID: base.ID,
		Role:   base.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   base.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i *issuer) verify(token string) (*session.Claims, error) {
	claims := &session.Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.New("token carries no user id")
	}
	return claims, nil
}

func bearer(h string) (string, bool) {
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// authMiddleware resolves the bearer token to a user and stores it in the
// request context.
func authMiddleware(iss *issuer, state *State) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, &Error{Status: http.StatusUnauthorized, Message: "Missing bearer token"})
				return
			}
			claims, err := iss.verify(token)
			if err != nil {
				writeError(w, &Error{Status: http.StatusUnauthorized, Message: fmt.Sprintf("Invalid token: %v", err)})
				return
			}
			user, err := state.User(claims.UserID)
			if err != nil {
				writeError(w, &Error{Status: http.StatusUnauthorized, Message: "Unknown user"})
				return
			}
			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// roleMiddleware rejects callers whose role is not among allowed.
func roleMiddleware(allowed ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := currentUser(r)
			if user == nil {
				writeError(w, forbidden("User not found in request"))
				return
			}
			role := user.Base().Role
			for _, a := range allowed {
				if role == a {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, forbidden("Access denied for role %s", role))
		})
	}
}

func currentUser(r *http.Request) domain.User {
	u, _ := r.Context().Value(userContextKey).(domain.User)
	return u
}
