package chat

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/fedcli/internal/api"
	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/metrics"
)

func TestActions_TakeChargeRefreshes(t *testing.T) {
	backend := &fakeAssigner{assignMsg: "Chat taken in charge."}
	refresher := &countingRefresher{}
	m := metrics.New()
	a := NewActions(backend, refresher).WithMetrics(m)

	text, err := a.TakeCharge(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Chat taken in charge.", text)
	assert.Equal(t, 1, refresher.n)
	assert.Equal(t, []string{"assign:c1"}, backend.calls)
	assert.Equal(t, int64(1), m.Assignments.Load())
}

func TestActions_ConflictSurfacesReasonAndStillRefreshes(t *testing.T) {
	backend := &fakeAssigner{assignErr: &api.APIError{
		Status:  http.StatusConflict,
		Message: "This chat has already been taken in charge.",
		Path:    "chat/assign/c1",
	}}
	refresher := &countingRefresher{}
	m := metrics.New()
	a := NewActions(backend, refresher).WithMetrics(m)

	_, err := a.TakeCharge(context.Background(), "c1")
	require.Error(t, err)

	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.True(t, actionErr.Conflict())
	assert.Equal(t, "This chat has already been taken in charge.", actionErr.Reason)
	assert.ErrorIs(t, err, api.ErrConflict)

	assert.Equal(t, 1, refresher.n, "refresh must follow a failed action too")
	assert.Equal(t, int64(1), m.AssignmentConflicts.Load())
}

func TestActions_ReleaseRefreshes(t *testing.T) {
	backend := &fakeAssigner{releaseErr: errors.New("network down")}
	refresher := &countingRefresher{}
	a := NewActions(backend, refresher).WithMetrics(metrics.New())

	_, err := a.Release(context.Background(), "c1")
	require.Error(t, err)

	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.False(t, actionErr.Conflict())
	assert.Equal(t, "network down", actionErr.Reason)
	assert.Equal(t, 1, refresher.n)
}

func TestActions_NoSelection(t *testing.T) {
	backend := &fakeAssigner{}
	refresher := &countingRefresher{}
	a := NewActions(backend, refresher).WithMetrics(metrics.New())

	_, err := a.TakeCharge(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoSelection)
	assert.Empty(t, backend.calls)
	assert.Equal(t, 0, refresher.n)
}

// The label after an action always comes from the refreshed snapshot, never
// from the action's outcome.
func TestScenario_TakeChargeThenRefresh(t *testing.T) {
	src := &fakeSource{}
	src.push([]domain.ChatSummary{{ConversationID: "c1", Status: domain.StatusFree, WaitingForReply: true}}, nil)
	src.push([]domain.ChatSummary{{ConversationID: "c1", Status: domain.StatusAssigned, AssignedAgentID: strptr("A1")}}, nil)

	f, _, _ := startFeed(t, src)
	v := ViewState{CurrentUserID: "A1"}.Select("c1")

	v, _ = v.Apply(next(t, f))
	assert.Equal(t, "WAITING FOR REPLY", v.AssignmentLabel())
	assert.False(t, v.CanWrite())

	a := NewActions(&fakeAssigner{assignMsg: "ok"}, f).WithMetrics(metrics.New())
	_, err := a.TakeCharge(context.Background(), "c1")
	require.NoError(t, err)

	// Nothing changes until the refresh lands.
	assert.False(t, v.CanWrite())

	v, _ = v.Apply(next(t, f))
	assert.True(t, v.CanWrite())
	assert.Equal(t, "HANDLED BY YOU", v.AssignmentLabel())
}

func TestScenario_ConflictDoesNotFlipStatus(t *testing.T) {
	held := []domain.ChatSummary{{ConversationID: "c1", Status: domain.StatusAssigned, AssignedAgentID: strptr("A1")}}
	src := &fakeSource{}
	src.push(held, nil)

	f, _, _ := startFeed(t, src)
	v := ViewState{CurrentUserID: "A2"}.Select("c1")
	v, _ = v.Apply(next(t, f))

	a := NewActions(&fakeAssigner{assignErr: &api.APIError{Status: http.StatusConflict, Message: "already taken"}}, f).
		WithMetrics(metrics.New())
	_, err := a.TakeCharge(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, "already taken", api.Reason(err))

	v, applied := v.Apply(next(t, f))
	assert.True(t, applied)
	assert.False(t, v.CanWrite())
	assert.Equal(t, "HANDLED BY: A1", v.AssignmentLabel())
}
