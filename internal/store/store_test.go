package store

import (
	"errors"
	"testing"
)

func TestFilter_WithMethods(t *testing.T) {
	f := DefaultFilter()

	if f.Limit != 100 {
		t.Errorf("DefaultFilter().Limit = %d, want 100", f.Limit)
	}

	f2 := f.WithLimit(50).WithOffset(10).WithOrder("started_at", true)
	if f2.Limit != 50 {
		t.Errorf("WithLimit(50).Limit = %d, want 50", f2.Limit)
	}
	if f2.Offset != 10 {
		t.Errorf("WithOffset(10).Offset = %d, want 10", f2.Offset)
	}
	if f2.OrderBy != "started_at" {
		t.Errorf("WithOrder().OrderBy = %q, want %q", f2.OrderBy, "started_at")
	}
	if !f2.OrderDesc {
		t.Error("WithOrder(_, true).OrderDesc = false, want true")
	}

	// Original should be unchanged (immutable)
	if f.Limit != 100 {
		t.Error("original filter was mutated")
	}
}

func TestFilter_WithWhere(t *testing.T) {
	base := DefaultFilter().WithWhere("status", "success")
	f := base.WithWhere("category", "chat")

	if f.Where["status"] != "success" {
		t.Errorf("Where[status] = %v, want 'success'", f.Where["status"])
	}
	if f.Where["category"] != "chat" {
		t.Errorf("Where[category] = %v, want 'chat'", f.Where["category"])
	}
	if _, ok := base.Where["category"]; ok {
		t.Error("WithWhere mutated the receiver's conditions")
	}
}

func TestErrors(t *testing.T) {
	err := NewNotFoundError("summary snapshot", "latest")
	if !IsNotFound(err) {
		t.Error("IsNotFound should return true")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("should wrap ErrNotFound")
	}

	nfe := &NotFoundError{}
	if !errors.As(err, &nfe) {
		t.Fatal("should be NotFoundError")
	}
	if nfe.Kind != "summary snapshot" || nfe.Key != "latest" {
		t.Error("wrong kind/key in error")
	}
	if err.Error() != `summary snapshot "latest" not cached` {
		t.Errorf("unexpected message %q", err.Error())
	}
	if IsNotFound(ErrClosed) {
		t.Error("ErrClosed is not a not-found error")
	}
}
