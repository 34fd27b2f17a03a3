// Package runtime holds process lifecycle helpers: ordered shutdown and
// reconnect backoff.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joss/fedcli/internal/logging"
)

// ShutdownFunc is a cleanup step run during shutdown.
type ShutdownFunc func(ctx context.Context) error

// ShutdownManager runs registered cleanup steps once, last registered first.
type ShutdownManager struct {
	mu       sync.Mutex
	handlers []namedHandler
	timeout  time.Duration
	log      *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

type namedHandler struct {
	name string
	fn   ShutdownFunc
}

// DefaultShutdownTimeout bounds all cleanup steps together.
const DefaultShutdownTimeout = 10 * time.Second

var (
	globalManager *ShutdownManager
	managerOnce   sync.Once
)

// Global returns the process-wide manager.
func Global() *ShutdownManager {
	managerOnce.Do(func() {
		globalManager = NewShutdownManager(DefaultShutdownTimeout)
	})
	return globalManager
}

func NewShutdownManager(timeout time.Duration) *ShutdownManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ShutdownManager{
		timeout: timeout,
		log:     logging.New("shutdown"),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup step. Steps run in reverse registration order so
// a window closes before the connection it used, and the connection before
// the store.
func (m *ShutdownManager) Register(name string, fn ShutdownFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, namedHandler{name: name, fn: fn})
}

// RegisterSimple adds a cleanup step that cannot fail.
func (m *ShutdownManager) RegisterSimple(name string, fn func()) {
	m.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Context is cancelled when shutdown begins.
func (m *ShutdownManager) Context() context.Context {
	return m.ctx
}

// Done is closed when shutdown has finished.
func (m *ShutdownManager) Done() <-chan struct{} {
	return m.done
}

// Err joins the errors returned by cleanup steps. Valid after Done.
func (m *ShutdownManager) Err() error {
	<-m.done
	return m.err
}

// ListenForSignals starts shutdown on SIGINT or SIGTERM. Non-blocking.
func (m *ShutdownManager) ListenForSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigChan:
			m.log.Info("signal_received", map[string]interface{}{"signal": sig.String()})
			m.Shutdown()
		case <-m.done:
		}
		signal.Stop(sigChan)
	}()
}

// Shutdown cancels Context and runs every step. Later calls wait for the
// first to finish.
func (m *ShutdownManager) Shutdown() {
	m.once.Do(m.run)
	<-m.done
}

func (m *ShutdownManager) run() {
	defer close(m.done)
	m.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	handlers := make([]namedHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	var errs []error
	for i := len(handlers) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			m.log.Warn("shutdown_timeout", map[string]interface{}{"skipped": i + 1}, ctx.Err())
			errs = append(errs, fmt.Errorf("shutdown timed out after %v", m.timeout))
			break
		}
		h := handlers[i]
		start := time.Now()
		err := runStep(ctx, h)
		m.log.TimedEvent("cleanup", start, map[string]interface{}{"step": h.name}, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	m.err = errors.Join(errs...)
}

// runStep returns when fn does or when ctx expires, whichever is first.
func runStep(ctx context.Context, h namedHandler) error {
	result := make(chan error, 1)
	go func() {
		result <- logging.NewRecoveryHandler("shutdown").WrapError(func() error {
			return h.fn(ctx)
		})
	}()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnShutdown registers a step with the global manager.
func OnShutdown(name string, fn ShutdownFunc) {
	Global().Register(name, fn)
}

// OnShutdownSimple registers a simple step with the global manager.
func OnShutdownSimple(name string, fn func()) {
	Global().RegisterSimple(name, fn)
}

// ListenForSignals starts signal handling on the global manager.
func ListenForSignals() {
	Global().ListenForSignals()
}

// ShutdownContext returns the global manager's context.
func ShutdownContext() context.Context {
	return Global().Context()
}
