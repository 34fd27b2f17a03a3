package logging

import (
	"fmt"
	"runtime/debug"
)

// PanicError is what a recovered panic becomes.
type PanicError struct {
	Component string
	Value     any
	Stack     string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Component, e.Value)
}

// RecoveryHandler turns panics in background loops (feed poller, stream
// readers, shutdown hooks) into logged errors carrying the logger's scope.
type RecoveryHandler struct {
	log     *Logger
	OnPanic func(*PanicError)
}

// NewRecoveryHandler creates a handler logging under component.
func NewRecoveryHandler(component string) *RecoveryHandler {
	return New(component).Recovery()
}

// Recovery returns a handler that logs with l's user and conversation.
func (l *Logger) Recovery() *RecoveryHandler {
	return &RecoveryHandler{log: l}
}

// Wrap runs fn, swallowing a panic after logging it.
func (r *RecoveryHandler) Wrap(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			r.handle(v)
		}
	}()
	fn()
}

// WrapError runs fn; a panic is returned as *PanicError.
func (r *RecoveryHandler) WrapError(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = r.handle(v)
		}
	}()
	return fn()
}

func (r *RecoveryHandler) handle(v any) *PanicError {
	pe := &PanicError{Component: r.log.component, Value: v, Stack: string(debug.Stack())}
	e := r.log.event(LevelError, "panic_recovered", map[string]interface{}{"stack": pe.Stack}, nil)
	e.Error = fmt.Sprint(v)
	write(e)
	if r.OnPanic != nil {
		r.OnPanic(pe)
	}
	return pe
}

// SafeGo runs fn in a goroutine that cannot crash the process.
func SafeGo(component string, fn func()) {
	go NewRecoveryHandler(component).Wrap(fn)
}

// Recover is deferred at the top of a goroutine to log and swallow panics.
func Recover(component string) {
	if v := recover(); v != nil {
		NewRecoveryHandler(component).handle(v)
	}
}

// Recover is the scoped form of the package-level Recover.
func (l *Logger) Recover() {
	if v := recover(); v != nil {
		l.Recovery().handle(v)
	}
}
