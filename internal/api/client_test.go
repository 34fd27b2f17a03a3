package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/fedcli/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api", StaticToken("tok-123"))
}

func TestClient_AttachesBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/chat/summaries", r.URL.Path)
		w.Write([]byte(`[]`))
	})

	_, err := c.Summaries(context.Background())
	require.NoError(t, err)
}

func TestClient_TokenSourceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent without a token")
	}))
	defer srv.Close()

	tokenErr := errors.New("session expired")
	c := New(srv.URL, tokenFunc(func() (string, error) { return "", tokenErr }))

	_, err := c.Summaries(context.Background())
	assert.ErrorIs(t, err, tokenErr)
}

type tokenFunc func() (string, error)

func (f tokenFunc) Token() (string, error) { return f() }

func TestClient_Summaries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"chatUserId":"c1","clubManagerName":"Carlo B","lastMessageTime":"2024-05-05T12:00:00","status":"FREE","assignedAdminId":null,"waitingForReply":true},
			{"chatUserId":"c2","clubManagerName":"Dora E","lastMessageTime":null,"status":"ASSIGNED","assignedAdminId":"A1","waitingForReply":false}
		]`))
	})

	got, err := c.Summaries(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].WaitingForReply)
	assert.Equal(t, domain.StatusAssigned, got[1].Status)
	assert.Equal(t, "A1", got[1].AssignedTo())
}

func TestClient_History(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/chat/history/c%201", r.URL.EscapedPath())
		w.Write([]byte(`[{"id":"m1","chatUserId":"c 1","senderId":"c 1","senderRole":"CLUB_MANAGER","content":"hi","timestamp":"2024-05-05T12:00:00"}]`))
	})

	msgs, err := c.History(context.Background(), "c 1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, domain.RoleClubManager, msgs[0].SenderRole)
}

func TestClient_AssignReturnsPlainText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/assign/c1", r.URL.Path)
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Chat taken in charge."))
	})

	msg, err := c.Assign(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Chat taken in charge.", msg)
}

func TestClient_AssignConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"status":409,"message":"This chat is already handled.","timestamp":"2024-05-05T12:00:00.123"}`))
	})

	_, err := c.Assign(context.Background(), "c1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "This chat is already handled.", Reason(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 2024, apiErr.Timestamp.Year())
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
		reason string
	}{
		{http.StatusBadRequest, `{"status":400,"message":"not allowed"}`, ErrBadRequest, "not allowed"},
		{http.StatusUnauthorized, `{"status":401,"message":"bad credentials"}`, ErrUnauthorized, "bad credentials"},
		{http.StatusForbidden, `forbidden`, ErrForbidden, "forbidden"},
		{http.StatusNotFound, ``, ErrNotFound, "chat/release/c1: HTTP 404"},
		{http.StatusInternalServerError, `{"status":500,"message":"boom"}`, ErrServer, "boom"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			_, err := c.Release(context.Background(), "c1")
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, Reason(err), tt.reason)
		})
	}
}

func TestClient_Login(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@fed.it", body["email"])
		assert.Equal(t, "pw", body["password"])
		w.Write([]byte(`{"token":"jwt-value"}`))
	}))
	defer srv.Close()

	tok, err := New(srv.URL, nil).Login(context.Background(), "a@fed.it", "pw")
	require.NoError(t, err)
	assert.Equal(t, "jwt-value", tok)
}

func TestClient_UserUnion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/user/email/c@club.it":
			w.Write([]byte(`{"id":"c1","email":"c@club.it","role":"CLUB_MANAGER","clubId":"k1"}`))
		case "/api/user/find-by-role/ATHLETE":
			w.Write([]byte(`[{"id":"t1","role":"ATHLETE","weight":70}]`))
		default:
			http.NotFound(w, r)
		}
	})

	u, err := c.UserByEmail(context.Background(), "c@club.it")
	require.NoError(t, err)
	cm, ok := u.(domain.ClubManager)
	require.True(t, ok)
	assert.Equal(t, "k1", cm.ClubID)

	users, err := c.UsersByRole(context.Background(), domain.RoleAthlete)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, 70.0, users[0].(domain.Athlete).Weight)

	_, err = c.User(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_UpdateUserSendsPatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/user/update/c1", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var probe map[string]any
		require.NoError(t, json.Unmarshal(body, &probe))
		assert.Equal(t, "CLUB_MANAGER", probe["role"])
		w.Write(body)
	})

	u, err := c.UpdateUser(context.Background(), domain.ClubManager{UserBase: domain.UserBase{ID: "c1", FirstName: "New"}})
	require.NoError(t, err)
	assert.Equal(t, "New", u.Base().FirstName)
}

func TestClient_CreateUserValidatesFirst(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid payload must not reach the backend")
	})

	_, err := c.CreateUser(context.Background(), domain.CreateUser{Role: domain.RoleAthlete})
	assert.Error(t, err)
}

func TestClient_FederationEndpoints(t *testing.T) {
	seen := map[string]string{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen[r.Method+" "+r.URL.Path] = "ok"
		switch r.URL.Path {
		case "/api/club/to-approve":
			w.Write([]byte(`[{"id":"k1","name":"Dojo","affiliationStatus":"SUBMITTED","managers":["c1"],"athletes":[]}]`))
		case "/api/event/all":
			w.Write([]byte(`[{"id":"e1","name":"Open","date":"2025-05-01","status":"REGISTRATION_OPEN","disciplines":["MMA","K1"]}]`))
		case "/api/event/enroll":
			w.Write([]byte(`{"id":"en1","status":"SUBMITTED","discipline":"MMA","eventDate":"2025-05-01"}`))
		case "/api/athlete/to-approve":
			w.Write([]byte(`[{"id":"t1","role":"ATHLETE","affiliationStatus":"SUBMITTED"}]`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
	ctx := context.Background()

	clubs, err := c.ClubsToApprove(ctx)
	require.NoError(t, err)
	assert.False(t, clubs[0].Confirmed())
	require.NoError(t, c.ApproveClub(ctx, "k1"))

	events, err := c.Events(ctx)
	require.NoError(t, err)
	assert.True(t, events[0].HostsDiscipline(domain.CompetitionK1))

	en, err := c.Enroll(ctx, domain.CreateEnrollment{ClubID: "k1", AthleteID: "t1", EventID: "e1", CompetitionType: domain.CompetitionMMA})
	require.NoError(t, err)
	assert.False(t, en.Confirmed())

	athletes, err := c.AthletesToApprove(ctx)
	require.NoError(t, err)
	assert.Len(t, athletes, 1)
	require.NoError(t, c.ApproveAthlete(ctx, "t1"))

	assert.Contains(t, seen, "POST /api/club/approve/k1")
	assert.Contains(t, seen, "POST /api/athlete/approve/t1")
}
