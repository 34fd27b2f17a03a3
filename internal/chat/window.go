package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/logging"
	"github.com/joss/fedcli/internal/metrics"
	"github.com/joss/fedcli/internal/runtime"
)

// State is the lifecycle of a window's live channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

var stateNames = map[State]string{
	Disconnected: "DISCONNECTED",
	Connecting:   "CONNECTING",
	Connected:    "CONNECTED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stream is one live subscription to a conversation's topic.
type Stream interface {
	// Messages is closed when the stream stops, by Close or by a drop.
	Messages() <-chan domain.ChatMessage
	Send(msg domain.OutgoingMessage) error
	Close() error
}

// Dialer opens a Stream subscribed to one conversation.
type Dialer interface {
	Dial(ctx context.Context, conversationID string) (Stream, error)
}

// HistorySource fetches past messages.
type HistorySource interface {
	History(ctx context.Context, conversationID string) ([]domain.ChatMessage, error)
}

var (
	ErrReadOnly     = errors.New("conversation is read-only")
	ErrNotConnected = errors.New("live channel not connected")
	ErrWindowClosed = errors.New("chat window closed")
)

// WindowView is a copy of the window's display state.
type WindowView struct {
	ConversationID string
	State          State
	Messages       []domain.ChatMessage
	ReadOnly       bool
	HistoryLoaded  bool
	// HistoryError is the failed history fetch, if any; live messages
	// still flow.
	HistoryError error
	// LastError is the last connect failure, cleared once connected.
	LastError error
}

// WindowOption configures a Window.
type WindowOption func(*Window)

// WithReconnect sets the reconnect backoff bounds.
func WithReconnect(initial, max time.Duration) WindowOption {
	return func(w *Window) {
		w.backoffInitial, w.backoffMax = initial, max
	}
}

// WithWindowMetrics records into m instead of the global instance.
func WithWindowMetrics(m *metrics.Metrics) WindowOption {
	return func(w *Window) { w.metrics = m }
}

// ReadOnly opens the window with composition disabled.
func ReadOnly(ro bool) WindowOption {
	return func(w *Window) { w.readOnly = ro }
}

// Window shows one conversation at a time: its history followed by live
// messages. It owns at most one Stream, which belongs to the conversation
// currently open. Switching conversation tears the previous one down before
// the next is dialed, and responses from an abandoned conversation are
// dropped by generation.
type Window struct {
	dialer  Dialer
	history HistorySource
	log     *logging.Logger
	metrics *metrics.Metrics

	backoffInitial time.Duration
	backoffMax     time.Duration

	mu            sync.Mutex
	gen           uint64
	state         State
	convID        string
	msgs          []domain.ChatMessage
	historyLoaded bool
	readOnly      bool
	historyErr    error
	lastErr       error
	stream        Stream
	cancel        context.CancelFunc
	closed        bool

	updates       chan struct{}
	updatesClosed bool
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// NewWindow creates a disconnected window. Open attaches it to a conversation.
func NewWindow(d Dialer, h HistorySource, opts ...WindowOption) *Window {
	w := &Window{
		dialer:         d,
		history:        h,
		log:            logging.New("window"),
		metrics:        metrics.Global(),
		backoffInitial: time.Second,
		backoffMax:     30 * time.Second,
		updates:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.metrics.OpenWindows.Add(1)
	return w
}

// Updates signals that View changed. Signals coalesce; the channel is
// closed by Close.
func (w *Window) Updates() <-chan struct{} {
	return w.updates
}

func (w *Window) notifyLocked() {
	if w.updatesClosed {
		return
	}
	select {
	case w.updates <- struct{}{}:
	default:
	}
}

// View returns a copy of the current display state.
func (w *Window) View() WindowView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WindowView{
		ConversationID: w.convID,
		State:          w.state,
		Messages:       append([]domain.ChatMessage(nil), w.msgs...),
		ReadOnly:       w.readOnly,
		HistoryLoaded:  w.historyLoaded,
		HistoryError:   w.historyErr,
		LastError:      w.lastErr,
	}
}

// SetReadOnly toggles composition.
func (w *Window) SetReadOnly(ro bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readOnly != ro {
		w.readOnly = ro
		w.notifyLocked()
	}
}

// Open shows conversationID: the previous conversation, if any, is torn
// down, then history is fetched and the live channel dialed. Opening the
// conversation already shown is a no-op; opening "" just disconnects.
func (w *Window) Open(conversationID string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWindowClosed
	}
	if conversationID == w.convID && w.cancel != nil {
		w.mu.Unlock()
		return nil
	}

	old := w.teardownLocked()
	if conversationID == "" {
		w.notifyLocked()
		w.mu.Unlock()
		w.closeStream(old, "switch")
		return nil
	}

	gen := w.gen
	w.convID = conversationID
	w.state = Connecting
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(2)
	w.notifyLocked()
	w.mu.Unlock()

	w.closeStream(old, "switch")
	w.log.WithConversation(conversationID).Info("window_open", nil)

	go w.loadHistory(ctx, gen, conversationID)
	go w.connectLoop(ctx, gen, conversationID)
	return nil
}

// teardownLocked ends the current generation: in-flight work is cancelled,
// the stream is detached and returned for the caller to close.
func (w *Window) teardownLocked() Stream {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.gen++
	s := w.stream
	w.stream = nil
	w.state = Disconnected
	w.convID = ""
	w.msgs = nil
	w.historyLoaded = false
	w.historyErr = nil
	w.lastErr = nil
	return s
}

func (w *Window) closeStream(s Stream, reason string) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		w.log.Warn("stream_close_failed", map[string]interface{}{"reason": reason}, err)
	}
}

func (w *Window) loadHistory(ctx context.Context, gen uint64, id string) {
	defer w.wg.Done()
	log := w.log.WithConversation(id)
	defer log.Recover()

	start := time.Now()
	history, err := w.history.History(ctx, id)

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen {
		log.Debug("stale_history_dropped", nil)
		return
	}
	if err != nil {
		log.Warn("history_failed", nil, err)
		w.historyErr = err
		w.notifyLocked()
		return
	}
	log.TimedEvent("history_loaded", start, map[string]interface{}{"count": len(history)}, nil)

	// Live messages that beat the history response are kept after it,
	// unless history already contains them.
	seen := make(map[string]bool, len(history))
	for _, m := range history {
		if m.ID != "" {
			seen[m.ID] = true
		}
	}
	merged := append([]domain.ChatMessage(nil), history...)
	for _, m := range w.msgs {
		if m.ID == "" || !seen[m.ID] {
			merged = append(merged, m)
		}
	}
	w.msgs = merged
	w.historyLoaded = true
	w.notifyLocked()
}

func (w *Window) connectLoop(ctx context.Context, gen uint64, id string) {
	defer w.wg.Done()
	log := w.log.WithConversation(id)
	defer log.Recover()

	backoff := runtime.NewBackoff(w.backoffInitial, w.backoffMax)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.metrics.Reconnects.Add(1)
		}

		stream, err := w.dialer.Dial(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("connect_failed", map[string]interface{}{"attempt": attempt}, err)
			w.setError(gen, err)
			if !runtime.Sleep(ctx, backoff.Next()) {
				return
			}
			continue
		}

		if !w.attach(gen, stream) {
			w.closeStream(stream, "stale")
			return
		}
		backoff.Reset()
		log.Info("connected", map[string]interface{}{"attempt": attempt})

		w.pump(ctx, gen, id, stream)
		if ctx.Err() != nil {
			// Teardown owns the close.
			return
		}

		if w.detach(gen, stream) {
			w.closeStream(stream, "dropped")
		}
		log.Warn("connection_lost", nil, nil)
		if !runtime.Sleep(ctx, backoff.Next()) {
			return
		}
	}
}

func (w *Window) attach(gen uint64, s Stream) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen || w.closed {
		return false
	}
	w.stream = s
	w.state = Connected
	w.lastErr = nil
	w.notifyLocked()
	return true
}

// detach unhooks s after a drop; it reports whether the caller now owns s.
func (w *Window) detach(gen uint64, s Stream) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stream != s {
		return false
	}
	w.stream = nil
	if gen == w.gen {
		w.state = Connecting
		w.notifyLocked()
	}
	return true
}

func (w *Window) setError(gen uint64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen == w.gen {
		w.lastErr = err
		w.notifyLocked()
	}
}

func (w *Window) pump(ctx context.Context, gen uint64, id string, s Stream) {
	msgs := s.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			w.appendMessage(gen, id, m)
		}
	}
}

// appendMessage adds m at the end, in arrival order, without de-duplication.
func (w *Window) appendMessage(gen uint64, id string, m domain.ChatMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen {
		return
	}
	if m.ConversationID != "" && m.ConversationID != id {
		w.log.WithConversation(id).Warn("foreign_message_dropped",
			map[string]interface{}{"message_conversation": m.ConversationID}, nil)
		return
	}
	w.msgs = append(w.msgs, m)
	w.metrics.MessagesReceived.Add(1)
	w.notifyLocked()
}

// Send publishes text to the open conversation. It reports whether the text
// was sent, so the caller clears its input only then: read-only windows
// refuse and whitespace-only text is skipped. No delivery acknowledgement is
// awaited; the message shows up when the broker echoes it back.
func (w *Window) Send(text string) (bool, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false, ErrWindowClosed
	}
	if w.readOnly {
		w.mu.Unlock()
		return false, ErrReadOnly
	}
	if strings.TrimSpace(text) == "" {
		w.mu.Unlock()
		return false, nil
	}
	s, id := w.stream, w.convID
	w.mu.Unlock()

	if s == nil {
		return false, ErrNotConnected
	}
	if err := s.Send(domain.OutgoingMessage{ConversationID: id, Message: text}); err != nil {
		w.log.WithConversation(id).Warn("send_failed", nil, err)
		return false, fmt.Errorf("send: %w", err)
	}
	w.metrics.MessagesSent.Add(1)
	return true, nil
}

// Close tears the window down. The stream is closed exactly once however
// many times Close is called and whatever work is in flight; the window
// never reconnects afterwards.
func (w *Window) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		id := w.convID
		s := w.teardownLocked()
		w.mu.Unlock()

		if s != nil {
			err = s.Close()
		}
		w.wg.Wait()
		w.metrics.OpenWindows.Add(-1)

		w.mu.Lock()
		w.updatesClosed = true
		close(w.updates)
		w.mu.Unlock()

		w.log.WithConversation(id).Info("window_closed", nil)
	})
	return err
}
