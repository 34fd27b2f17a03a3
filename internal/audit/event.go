// Package audit records every user-facing operation: what ran, for whom,
// how it ended and how long it took.
package audit

import (
	"time"
)

// Category groups operations by surface.
type Category string

const (
	CategoryAuth       Category = "auth"
	CategoryChat       Category = "chat"
	CategoryFederation Category = "federation"
	CategoryRuntime    Category = "runtime"
	CategorySystem     Category = "system"
)

// Status is the outcome of an operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusWarning Status = "warning"
)

// AuditEvent is a single auditable operation.
type AuditEvent struct {
	EventID string `json:"event_id"`

	// Operation details
	Category  Category `json:"category"`
	Operation string   `json:"operation"`
	Command   string   `json:"command,omitempty"`

	// Result
	Status       Status `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Timing
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	DurationMs  int64         `json:"duration_ms"`
	Duration    time.Duration `json:"-"`

	// Who and where
	SessionID      string `json:"session_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Role           string `json:"role,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ForConversation tags the event with a conversation.
func (e *AuditEvent) ForConversation(id string) *AuditEvent {
	e.ConversationID = id
	return e
}

// Complete finalizes the event with timing and status.
func (e *AuditEvent) Complete(status Status, err error) {
	e.CompletedAt = time.Now()
	e.Duration = e.CompletedAt.Sub(e.StartedAt)
	e.DurationMs = e.Duration.Milliseconds()
	e.Status = status

	if err != nil {
		e.ErrorMessage = err.Error()
		if status == "" {
			e.Status = StatusError
		}
	}
}
