package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/joss/fedcli/internal/api"
	"github.com/joss/fedcli/internal/logging"
	"github.com/joss/fedcli/internal/metrics"
)

// Assigner issues assignment intents; the backend arbitrates them.
type Assigner interface {
	Assign(ctx context.Context, conversationID string) (string, error)
	Release(ctx context.Context, conversationID string) (string, error)
}

// Refresher is told to refetch after every action.
type Refresher interface {
	Refresh()
}

// ErrNoSelection is returned when an action is requested with no conversation.
var ErrNoSelection = errors.New("no conversation selected")

// ActionError is a rejected take-charge or release. Reason is the backend's
// message, meant to be shown to the user as is.
type ActionError struct {
	Op             string
	ConversationID string
	Reason         string
	Err            error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.ConversationID, e.Reason)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Conflict reports whether the backend refused because someone holds the
// conversation, or the caller already holds another one.
func (e *ActionError) Conflict() bool {
	return errors.Is(e.Err, api.ErrConflict)
}

// Actions wraps take-charge and release. Local state is never updated from
// the outcome: every call, successful or not, triggers a refresh and the
// next snapshot is the only source of truth.
type Actions struct {
	api     Assigner
	feed    Refresher
	log     *logging.Logger
	metrics *metrics.Metrics
}

// NewActions binds actions to a backend and the feed to refresh.
func NewActions(a Assigner, feed Refresher) *Actions {
	return &Actions{api: a, feed: feed, log: logging.New("actions"), metrics: metrics.Global()}
}

// WithMetrics records into m instead of the global instance.
func (a *Actions) WithMetrics(m *metrics.Metrics) *Actions {
	a.metrics = m
	return a
}

// TakeCharge asks to become the handler of conversationID and returns the
// backend's confirmation text.
func (a *Actions) TakeCharge(ctx context.Context, conversationID string) (string, error) {
	return a.run(ctx, "take-charge", conversationID, a.api.Assign)
}

// Release gives up conversationID.
func (a *Actions) Release(ctx context.Context, conversationID string) (string, error) {
	return a.run(ctx, "release", conversationID, a.api.Release)
}

func (a *Actions) run(ctx context.Context, op, id string, call func(context.Context, string) (string, error)) (string, error) {
	if id == "" {
		return "", ErrNoSelection
	}
	defer a.feed.Refresh()

	msg, err := call(ctx, id)
	conflict := errors.Is(err, api.ErrConflict)
	a.metrics.RecordAssignment(op == "release", conflict)

	log := a.log.WithConversation(id)
	if err != nil {
		log.Warn(op+"_rejected", map[string]interface{}{"conflict": conflict}, err)
		return "", &ActionError{Op: op, ConversationID: id, Reason: api.Reason(err), Err: err}
	}
	log.Info(op, map[string]interface{}{"message": msg})
	return msg, nil
}
