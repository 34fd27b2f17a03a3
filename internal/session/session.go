package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/logging"
)

// Authenticator exchanges credentials for a token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// Session is an authenticated identity. It is read-only once created.
type Session struct {
	Token  string
	Claims Claims
}

func (s *Session) UserID() string    { return s.Claims.UserID }
func (s *Session) Role() domain.Role { return s.Claims.Role }
func (s *Session) Email() string     { return s.Claims.Email() }

// ExpiresAt returns the exp claim, or the zero time when absent.
func (s *Session) ExpiresAt() time.Time {
	if s.Claims.ExpiresAt == nil {
		return time.Time{}
	}
	return s.Claims.ExpiresAt.Time
}

// Manager owns the session lifecycle: created at login, dropped at logout or
// when the token is found expired.
type Manager struct {
	store TokenStore
	auth  Authenticator
	now   func() time.Time
	log   *logging.Logger
}

// NewManager creates a manager. auth may be nil for commands that never log in.
func NewManager(store TokenStore, auth Authenticator) *Manager {
	return &Manager{
		store: store,
		auth:  auth,
		now:   time.Now,
		log:   logging.New("session"),
	}
}

// WithClock replaces the clock (for testing).
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Login authenticates and stores the resulting token.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	if m.auth == nil {
		return nil, errors.New("login: no authenticator configured")
	}
	token, err := m.auth.Login(ctx, email, password)
	if err != nil {
		m.log.Warn("login_failed", map[string]interface{}{"email": email}, err)
		return nil, fmt.Errorf("login: %w", err)
	}

	sess, err := m.open(token)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := m.store.Save(token); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	m.log.WithUser(sess.UserID()).Info("login", map[string]interface{}{"role": string(sess.Role())})
	return sess, nil
}

// Current returns the stored session. An expired or unreadable token is
// cleared and reported, which callers treat as a forced logout.
func (m *Manager) Current() (*Session, error) {
	token, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNotLoggedIn
	}

	sess, err := m.open(token)
	if err != nil {
		m.log.Info("session_dropped", map[string]interface{}{"reason": err.Error()})
		if clearErr := m.store.Clear(); clearErr != nil {
			return nil, errors.Join(err, clearErr)
		}
		return nil, err
	}
	return sess, nil
}

// Token implements the token source used by the REST client.
func (m *Manager) Token() (string, error) {
	sess, err := m.Current()
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

// Logout drops the stored token.
func (m *Manager) Logout() error {
	return m.store.Clear()
}

// Guard returns the session when logged in with one of the allowed roles.
// With no roles given, any logged-in user passes.
func (m *Manager) Guard(allowed ...domain.Role) (*Session, error) {
	sess, err := m.Current()
	if err != nil {
		return nil, err
	}
	if len(allowed) > 0 && !slices.Contains(allowed, sess.Role()) {
		return nil, fmt.Errorf("%w %s", ErrForbiddenRole, sess.Role())
	}
	return sess, nil
}

func (m *Manager) open(token string) (*Session, error) {
	claims, err := DecodeClaims(token)
	if err != nil {
		return nil, err
	}
	if claims.Expired(m.now()) {
		return nil, ErrExpired
	}
	return &Session{Token: token, Claims: *claims}, nil
}
