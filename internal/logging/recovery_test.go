package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(nil) })
	return &buf
}

func TestRecoveryHandler_WrapRunsFn(t *testing.T) {
	executed := false
	NewRecoveryHandler("feed").Wrap(func() { executed = true })
	if !executed {
		t.Error("function was not executed")
	}
}

func TestRecoveryHandler_OnPanicGetsStack(t *testing.T) {
	captureOutput(t)
	handler := NewRecoveryHandler("feed")

	var got *PanicError
	handler.OnPanic = func(pe *PanicError) { got = pe }
	handler.Wrap(func() { panic("poll exploded") })

	if got == nil {
		t.Fatal("panic was not captured")
	}
	if got.Value != "poll exploded" || got.Component != "feed" {
		t.Errorf("unexpected panic error: %+v", got)
	}
	if !strings.Contains(got.Stack, "TestRecoveryHandler_OnPanicGetsStack") {
		t.Error("stack trace should contain test function name")
	}
}

func TestRecoveryHandler_WrapErrorReturnsPanicError(t *testing.T) {
	captureOutput(t)
	handler := NewRecoveryHandler("shutdown")

	if err := handler.WrapError(func() error { return nil }); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	err := handler.WrapError(func() error { panic("hook failed") })
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PanicError, got %T", err)
	}
	if err.Error() != "panic in shutdown: hook failed" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestScopedRecoverKeepsConversation(t *testing.T) {
	buf := captureOutput(t)

	func() {
		defer New("window").WithUser("A1").WithConversation("cm1").Recover()
		panic("bad frame")
	}()

	var event Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &event); err != nil {
		t.Fatalf("failed to parse output: %v (output: %s)", err, buf.String())
	}
	if event.Event != "panic_recovered" || event.Component != "window" {
		t.Errorf("unexpected event: %+v", event)
	}
	if event.User != "A1" || event.Conversation != "cm1" || event.Error != "bad frame" {
		t.Errorf("scope lost: %+v", event)
	}
	if _, ok := event.Extra["stack"]; !ok {
		t.Error("stack missing from extra")
	}
}

func TestSafeGo(t *testing.T) {
	captureOutput(t)
	done := make(chan struct{})
	SafeGo("relay", func() {
		defer close(done)
		panic("goroutine panic")
	})
	<-done
}

func TestRecover(t *testing.T) {
	buf := captureOutput(t)
	func() {
		defer Recover("stomp")
		panic("reader panic")
	}()
	if !strings.Contains(buf.String(), `"component":"stomp"`) {
		t.Errorf("expected a stomp panic event, got %s", buf.String())
	}
}
