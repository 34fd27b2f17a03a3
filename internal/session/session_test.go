package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/fedcli/internal/domain"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func makeToken(t *testing.T, id string, role domain.Role, exp time.Time) string {
	t.Helper()
	claims := Claims{
		UserID: id,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id + "@fed.it",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

type fakeAuth struct {
	token string
	err   error
	calls int
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (string, error) {
	f.calls++
	return f.token, f.err
}

func TestDecodeClaims(t *testing.T) {
	tok := makeToken(t, "A1", domain.RoleFederationManager, now.Add(time.Hour))

	c, err := DecodeClaims(tok)
	require.NoError(t, err)
	assert.Equal(t, "A1", c.UserID)
	assert.Equal(t, domain.RoleFederationManager, c.Role)
	assert.Equal(t, "A1@fed.it", c.Email())
}

func TestDecodeClaims_Malformed(t *testing.T) {
	_, err := DecodeClaims("not-a-jwt")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestClaimsExpired(t *testing.T) {
	tests := []struct {
		name string
		exp  *jwt.NumericDate
		want bool
	}{
		{"no exp", nil, true},
		{"past", jwt.NewNumericDate(now.Add(-time.Second)), true},
		{"future", jwt.NewNumericDate(now.Add(time.Minute)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: tt.exp}}
			assert.Equal(t, tt.want, c.Expired(now))
		})
	}
}

func TestManager_LoginStoresToken(t *testing.T) {
	store := &MemoryStore{}
	auth := &fakeAuth{token: makeToken(t, "C7", domain.RoleClubManager, now.Add(time.Hour))}
	m := NewManager(store, auth).WithClock(func() time.Time { return now })

	sess, err := m.Login(context.Background(), "c7@club.it", "pw")
	require.NoError(t, err)
	assert.Equal(t, "C7", sess.UserID())
	assert.Equal(t, domain.RoleClubManager, sess.Role())

	stored, _ := store.Load()
	assert.Equal(t, auth.token, stored)
}

func TestManager_LoginRejectsExpiredToken(t *testing.T) {
	store := &MemoryStore{}
	auth := &fakeAuth{token: makeToken(t, "C7", domain.RoleClubManager, now.Add(-time.Hour))}
	m := NewManager(store, auth).WithClock(func() time.Time { return now })

	_, err := m.Login(context.Background(), "c7@club.it", "pw")
	assert.ErrorIs(t, err, ErrExpired)

	stored, _ := store.Load()
	assert.Empty(t, stored)
}

func TestManager_LoginPropagatesBackendError(t *testing.T) {
	backendErr := errors.New("bad credentials")
	m := NewManager(&MemoryStore{}, &fakeAuth{err: backendErr})

	_, err := m.Login(context.Background(), "x", "y")
	assert.ErrorIs(t, err, backendErr)
}

func TestManager_CurrentExpiryForcesLogout(t *testing.T) {
	store := &MemoryStore{}
	require.NoError(t, store.Save(makeToken(t, "A1", domain.RoleFederationManager, now.Add(time.Minute))))

	clock := now
	m := NewManager(store, nil).WithClock(func() time.Time { return clock })

	_, err := m.Current()
	require.NoError(t, err)

	clock = now.Add(2 * time.Minute)
	_, err = m.Current()
	assert.ErrorIs(t, err, ErrExpired)

	stored, _ := store.Load()
	assert.Empty(t, stored, "expired token must be cleared")

	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestManager_Guard(t *testing.T) {
	tests := []struct {
		name    string
		token   func(t *testing.T) string
		allowed []domain.Role
		wantErr error
	}{
		{"not logged in", func(t *testing.T) string { return "" }, []domain.Role{domain.RoleFederationManager}, ErrNotLoggedIn},
		{"allowed", func(t *testing.T) string {
			return makeToken(t, "A1", domain.RoleFederationManager, now.Add(time.Hour))
		}, []domain.Role{domain.RoleFederationManager}, nil},
		{"wrong role", func(t *testing.T) string {
			return makeToken(t, "T1", domain.RoleAthlete, now.Add(time.Hour))
		}, []domain.Role{domain.RoleFederationManager, domain.RoleClubManager}, ErrForbiddenRole},
		{"any role", func(t *testing.T) string {
			return makeToken(t, "T1", domain.RoleAthlete, now.Add(time.Hour))
		}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MemoryStore{}
			require.NoError(t, store.Save(tt.token(t)))
			m := NewManager(store, nil).WithClock(func() time.Time { return now })

			sess, err := m.Guard(tt.allowed...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, sess)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, sess)
		})
	}
}

func TestManager_Logout(t *testing.T) {
	store := &MemoryStore{}
	require.NoError(t, store.Save(makeToken(t, "A1", domain.RoleFederationManager, now.Add(time.Hour))))
	m := NewManager(store, nil).WithClock(func() time.Time { return now })

	require.NoError(t, m.Logout())
	_, err := m.Token()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "session.json")
	s := NewFileStore(path)

	tok, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, s.Save("abc.def.ghi"))
	tok, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear(), "clearing twice is not an error")
	tok, _ = s.Load()
	assert.Empty(t, tok)
}
