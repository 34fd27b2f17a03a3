// Package store persists what the client keeps locally: the last summary
// snapshot, conversation messages seen so far, and audit events.
package store

import (
	"context"
)

// Store is the minimal interface all stores implement.
type Store interface {
	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// Filter defines paging and ordering for list queries.
type Filter struct {
	Limit     int            // Maximum results (0 = no limit)
	Offset    int            // Skip first N results
	OrderBy   string         // Column to sort by, checked against an allow list
	OrderDesc bool           // Sort descending if true
	Where     map[string]any // Column equality conditions
}

// DefaultFilter returns a filter with sensible defaults.
func DefaultFilter() Filter {
	return Filter{
		Limit:     100,
		Offset:    0,
		OrderDesc: true,
	}
}

// WithLimit returns a copy of the filter with a new limit.
func (f Filter) WithLimit(n int) Filter {
	f.Limit = n
	return f
}

// WithOffset returns a copy of the filter with a new offset.
func (f Filter) WithOffset(n int) Filter {
	f.Offset = n
	return f
}

// WithOrder returns a copy of the filter with ordering.
func (f Filter) WithOrder(field string, desc bool) Filter {
	f.OrderBy = field
	f.OrderDesc = desc
	return f
}

// WithWhere returns a copy of the filter with an added condition. The
// condition map is copied so the receiver is never mutated.
func (f Filter) WithWhere(field string, value any) Filter {
	where := make(map[string]any, len(f.Where)+1)
	for k, v := range f.Where {
		where[k] = v
	}
	where[field] = value
	f.Where = where
	return f
}
