package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/joss/fedcli/internal/domain"
)

// Sentinels for the status codes callers branch on.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrServer       = errors.New("server error")
)

// APIError is a non-2xx response. Message is the backend's reason, suitable
// for showing to the user as is.
type APIError struct {
	Status    int              `json:"status"`
	Message   string           `json:"message"`
	Timestamp domain.LocalTime `json:"timestamp"`
	Path      string           `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Path, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Path, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusBadRequest:
		return ErrBadRequest
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return ErrForbidden
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusConflict:
		return ErrConflict
	case e.Status >= 500:
		return ErrServer
	}
	return nil
}

// Reason returns the backend message of err when it is an APIError,
// otherwise err's text.
func Reason(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// decodeError builds an APIError from an ErrorResponse body, falling back
// to the raw text for plain bodies.
func decodeError(resp *http.Response, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode, Path: path}

	var decoded APIError
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Message != "" {
		apiErr.Message = decoded.Message
		apiErr.Timestamp = decoded.Timestamp
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}
