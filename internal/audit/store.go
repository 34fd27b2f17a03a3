package audit

import (
	"context"
	"time"

	"github.com/joss/fedcli/internal/store"
)

// Sink persists audit events.
type Sink interface {
	Save(ctx context.Context, event *AuditEvent) error
}

// Store persists audit events in the local cache database.
type Store struct {
	db *store.Cache
}

var _ Sink = (*Store)(nil)

// NewStore wraps an open cache.
func NewStore(db *store.Cache) *Store {
	return &Store{db: db}
}

// Save persists an audit event.
func (s *Store) Save(ctx context.Context, event *AuditEvent) error {
	return s.db.SaveAudit(ctx, store.AuditRecord{
		ID:             event.EventID,
		Category:       string(event.Category),
		Operation:      event.Operation,
		Command:        event.Command,
		Status:         string(event.Status),
		ErrorMessage:   event.ErrorMessage,
		UserID:         event.UserID,
		Role:           event.Role,
		ConversationID: event.ConversationID,
		SessionID:      event.SessionID,
		StartedAt:      event.StartedAt,
		DurationMs:     event.DurationMs,
	})
}

// QueryFilter narrows Query.
type QueryFilter struct {
	Category       Category
	Status         Status
	ConversationID string
	Since          time.Time
	Limit          int
	Offset         int
	OldestFirst    bool
}

// Query returns matching events, newest first unless OldestFirst is set.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]AuditEvent, error) {
	f := store.DefaultFilter()
	if filter.Limit > 0 {
		f = f.WithLimit(filter.Limit)
	}
	if filter.Offset > 0 {
		f = f.WithOffset(filter.Offset)
	}
	if filter.OldestFirst {
		f = f.WithOrder("started_at", false)
	}
	if filter.Category != "" {
		f = f.WithWhere("category", string(filter.Category))
	}
	if filter.Status != "" {
		f = f.WithWhere("status", string(filter.Status))
	}
	if filter.ConversationID != "" {
		f = f.WithWhere("conversation_id", filter.ConversationID)
	}

	records, err := s.db.ListAudit(ctx, f, filter.Since)
	if err != nil {
		return nil, err
	}

	events := make([]AuditEvent, 0, len(records))
	for _, r := range records {
		events = append(events, AuditEvent{
			EventID:        r.ID,
			Category:       Category(r.Category),
			Operation:      r.Operation,
			Command:        r.Command,
			Status:         Status(r.Status),
			ErrorMessage:   r.ErrorMessage,
			StartedAt:      r.StartedAt,
			CompletedAt:    r.StartedAt.Add(time.Duration(r.DurationMs) * time.Millisecond),
			DurationMs:     r.DurationMs,
			Duration:       time.Duration(r.DurationMs) * time.Millisecond,
			SessionID:      r.SessionID,
			UserID:         r.UserID,
			Role:           r.Role,
			ConversationID: r.ConversationID,
		})
	}
	return events, nil
}

// GetErrors returns recent failed events.
func (s *Store) GetErrors(ctx context.Context, limit int) ([]AuditEvent, error) {
	return s.Query(ctx, QueryFilter{Status: StatusError, Limit: limit})
}

// Stats summarizes every stored event.
func (s *Store) Stats(ctx context.Context) (store.AuditStats, error) {
	return s.db.AuditStats(ctx)
}
