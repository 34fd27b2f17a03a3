package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the cache holds nothing for the key. Callers treat it
	// as "go online", never as a failure of the backend.
	ErrNotFound = errors.New("not cached")

	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("cache closed")

	// ErrInvalidFilter means a filter names a column outside the whitelist.
	ErrInvalidFilter = errors.New("invalid filter")
)

// NotFoundError names what was missing.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not cached", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NewNotFoundError(kind, key string) error {
	return &NotFoundError{Kind: kind, Key: key}
}

// IsNotFound reports whether err means a cache miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
