// Package logging provides structured JSON logging for fedcli components.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Event represents a structured log event
type Event struct {
	Timestamp    string                 `json:"ts"`
	Level        Level                  `json:"level"`
	Component    string                 `json:"component"`
	Event        string                 `json:"event"`
	User         string                 `json:"user,omitempty"`
	Conversation string                 `json:"conversation,omitempty"`
	Duration     int64                  `json:"duration_ms,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// sink is shared by every logger so a TUI can move all output at once.
var (
	sinkMu   sync.Mutex
	sink     io.Writer = os.Stderr
	minLevel           = LevelInfo
)

// SetOutput redirects all loggers. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	sink = w
}

// SetLevel sets the minimum level written. Unknown names are ignored.
func SetLevel(level string) {
	l := Level(level)
	if _, ok := levelRank[l]; !ok {
		return
	}
	sinkMu.Lock()
	minLevel = l
	sinkMu.Unlock()
}

// OpenFile opens path for appending and redirects all loggers to it.
// The returned close func restores stderr.
func OpenFile(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	SetOutput(f)
	return func() error {
		SetOutput(nil)
		return f.Close()
	}, nil
}

func write(e Event) {
	data, _ := json.Marshal(e)

	sinkMu.Lock()
	defer sinkMu.Unlock()
	if levelRank[e.Level] < levelRank[minLevel] {
		return
	}
	fmt.Fprintln(sink, string(data))
}

// Logger provides structured logging
type Logger struct {
	component    string
	user         string
	conversation string
}

// New creates a new logger for a component
func New(component string) *Logger {
	return &Logger{component: component}
}

// WithUser sets the acting user context
func (l *Logger) WithUser(user string) *Logger {
	return &Logger{
		component:    l.component,
		user:         user,
		conversation: l.conversation,
	}
}

// WithConversation sets the conversation context
func (l *Logger) WithConversation(id string) *Logger {
	return &Logger{
		component:    l.component,
		user:         l.user,
		conversation: id,
	}
}

func (l *Logger) event(level Level, event string, extra map[string]interface{}, err error) Event {
	e := Event{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Level:        level,
		Component:    l.component,
		Event:        event,
		User:         l.user,
		Conversation: l.conversation,
		Extra:        extra,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Debug logs a debug event
func (l *Logger) Debug(event string, extra map[string]interface{}) {
	write(l.event(LevelDebug, event, extra, nil))
}

// Info logs an info event
func (l *Logger) Info(event string, extra map[string]interface{}) {
	write(l.event(LevelInfo, event, extra, nil))
}

// Warn logs a warning event
func (l *Logger) Warn(event string, extra map[string]interface{}, err error) {
	write(l.event(LevelWarn, event, extra, err))
}

// Error logs an error event
func (l *Logger) Error(event string, extra map[string]interface{}, err error) {
	write(l.event(LevelError, event, extra, err))
}

// TimedEvent logs an event with duration. A non-nil err raises it to warn.
func (l *Logger) TimedEvent(event string, start time.Time, extra map[string]interface{}, err error) {
	level := LevelInfo
	if err != nil {
		level = LevelWarn
	}
	e := l.event(level, event, extra, err)
	e.Duration = time.Since(start).Milliseconds()
	write(e)
}
