package mockserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joss/fedcli/internal/domain"
)

// Error is a failure with the HTTP status the backend answers it with.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func notFound(format string, args ...any) error {
	return &Error{Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &Error{Status: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}

func forbidden(format string, args ...any) error {
	return &Error{Status: http.StatusForbidden, Message: fmt.Sprintf(format, args...)}
}

// notAllowed is an action rejected by the current state of a resource.
func notAllowed(format string, args ...any) error {
	return &Error{Status: http.StatusBadRequest, Message: "Action not allowed: " + fmt.Sprintf(format, args...)}
}

func badRequest(format string, args ...any) error {
	return &Error{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

var errBadCredentials = &Error{Status: http.StatusUnauthorized, Message: "Invalid email or password."}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Status    int              `json:"status"`
	Message   string           `json:"message"`
	Timestamp domain.LocalTime `json:"timestamp"`
}

func writeError(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Status: http.StatusInternalServerError, Message: "Unexpected error: " + err.Error()}
	}
	writeJSON(w, e.Status, errorResponse{
		Status:    e.Status,
		Message:   e.Message,
		Timestamp: domain.LocalTime{Time: time.Now()},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain;charset=UTF-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
