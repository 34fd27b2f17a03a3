package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joss/fedcli/internal/logging"
)

// Logger records audit events to an optional stream and an optional sink.
type Logger struct {
	mu        sync.Mutex
	sessionID string
	userID    string
	role      string
	output    io.Writer
	sink      Sink
	log       *logging.Logger
}

// LoggerOption configures the logger.
type LoggerOption func(*Logger)

// WithSink persists every logged event.
func WithSink(s Sink) LoggerOption {
	return func(l *Logger) {
		l.sink = s
	}
}

// WithSession sets the process session id.
func WithSession(id string) LoggerOption {
	return func(l *Logger) {
		l.sessionID = id
	}
}

// WithOutput writes each event as a JSON line to w.
func WithOutput(w io.Writer) LoggerOption {
	return func(l *Logger) {
		l.output = w
	}
}

// NewLogger creates a logger. Without options events go nowhere but the
// structured log.
func NewLogger(opts ...LoggerOption) *Logger {
	l := &Logger{log: logging.New("audit")}
	for _, opt := range opts {
		opt(l)
	}
	if l.sessionID == "" {
		l.sessionID = uuid.NewString()
	}
	return l
}

// SetUser attaches the logged-in user to subsequent events.
func (l *Logger) SetUser(userID, role string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.userID, l.role = userID, role
}

// SetSink replaces the persistence sink, nil to disable it.
func (l *Logger) SetSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = s
}

// Start begins tracking an operation.
func (l *Logger) Start(category Category, operation string) *AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &AuditEvent{
		EventID:   uuid.NewString(),
		Category:  category,
		Operation: operation,
		StartedAt: time.Now(),
		SessionID: l.sessionID,
		UserID:    l.userID,
		Role:      l.role,
	}
}

// StartWithCommand begins tracking a command line.
func (l *Logger) StartWithCommand(category Category, operation, command string) *AuditEvent {
	event := l.Start(category, operation)
	event.Command = command
	return event
}

// Log writes a completed event.
func (l *Logger) Log(event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.CompletedAt.IsZero() {
		event.CompletedAt = time.Now()
		event.Duration = event.CompletedAt.Sub(event.StartedAt)
		event.DurationMs = event.Duration.Milliseconds()
	}

	extra := map[string]interface{}{
		"category":  string(event.Category),
		"operation": event.Operation,
		"status":    string(event.Status),
	}
	if event.Status == StatusError {
		l.log.WithUser(event.UserID).WithConversation(event.ConversationID).
			Warn("operation_failed", extra, fmt.Errorf("%s", event.ErrorMessage))
	} else {
		l.log.WithUser(event.UserID).WithConversation(event.ConversationID).Debug("operation", extra)
	}

	var err error
	if l.output != nil {
		data, mErr := json.Marshal(event)
		if mErr != nil {
			return fmt.Errorf("marshal event: %w", mErr)
		}
		_, err = fmt.Fprintf(l.output, "%s\n", data)
	}

	// Persistence failures never fail the operation being audited.
	if l.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if sErr := l.sink.Save(ctx, event); sErr != nil {
			l.log.Warn("persist_failed", map[string]interface{}{"event_id": event.EventID}, sErr)
		}
	}

	return err
}

// LogSuccess logs a successful operation.
func (l *Logger) LogSuccess(event *AuditEvent) error {
	event.Complete(StatusSuccess, nil)
	return l.Log(event)
}

// LogError logs a failed operation.
func (l *Logger) LogError(event *AuditEvent, err error) error {
	event.Complete(StatusError, err)
	return l.Log(event)
}

// LogWarning logs an operation that completed with a caveat.
func (l *Logger) LogWarning(event *AuditEvent, msg string) error {
	event.Complete(StatusWarning, nil)
	event.ErrorMessage = msg
	return l.Log(event)
}

// LogOp logs a complete operation in one call.
func (l *Logger) LogOp(category Category, operation string, status Status, err error) {
	event := l.Start(category, operation)
	event.Complete(status, err)
	_ = l.Log(event)
}

// SessionID returns the process session id.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// Global logger instance
var (
	globalLogger *Logger
	globalOnce   sync.Once
)

// Global returns the global logger instance.
func Global() *Logger {
	globalOnce.Do(func() {
		if globalLogger == nil {
			globalLogger = NewLogger()
		}
	})
	return globalLogger
}

// SetGlobal sets the global logger.
func SetGlobal(l *Logger) {
	globalOnce.Do(func() {})
	globalLogger = l
}

// Op logs a quick operation on the global logger.
func Op(category Category, operation string, status Status, err error) {
	Global().LogOp(category, operation, status, err)
}
