package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joss/fedcli/internal/domain"
)

func strptr(s string) *string { return &s }

func msg(id, conv, sender, content string) domain.ChatMessage {
	return domain.ChatMessage{ID: id, ConversationID: conv, SenderID: sender, Content: content}
}

// ─── Summaries ───

type fakeSource struct {
	mu       sync.Mutex
	results  []fakeResult
	calls    int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

type fakeResult struct {
	list []domain.ChatSummary
	err  error
}

func (f *fakeSource) push(list []domain.ChatSummary, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, fakeResult{list, err})
}

func (f *fakeSource) Summaries(ctx context.Context) ([]domain.ChatSummary, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxSeen.Load()
		if n <= max || f.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return []domain.ChatSummary{}, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.list, r.err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type manualTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{c: make(chan time.Time)}
}

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop()               { t.stopped.Store(true) }
func (t *manualTicker) tick()               { t.c <- time.Now() }

// ─── Assignment ───

type fakeAssigner struct {
	assignMsg, releaseMsg string
	assignErr, releaseErr error
	calls                 []string
}

func (f *fakeAssigner) Assign(_ context.Context, id string) (string, error) {
	f.calls = append(f.calls, "assign:"+id)
	return f.assignMsg, f.assignErr
}

func (f *fakeAssigner) Release(_ context.Context, id string) (string, error) {
	f.calls = append(f.calls, "release:"+id)
	return f.releaseMsg, f.releaseErr
}

type countingRefresher struct{ n int }

func (r *countingRefresher) Refresh() { r.n++ }

// ─── Live channel ───

type fakeStream struct {
	conv   string
	in     chan domain.ChatMessage
	closes atomic.Int32

	mu       sync.Mutex
	sent     []domain.OutgoingMessage
	sendErr  error
	dropOnce sync.Once
}

func newFakeStream(conv string) *fakeStream {
	return &fakeStream{conv: conv, in: make(chan domain.ChatMessage, 16)}
}

func (s *fakeStream) Messages() <-chan domain.ChatMessage { return s.in }

func (s *fakeStream) Send(m domain.OutgoingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	return nil
}

// drop simulates the broker going away.
func (s *fakeStream) drop() {
	s.dropOnce.Do(func() { close(s.in) })
}

func (s *fakeStream) sentMessages() []domain.OutgoingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutgoingMessage(nil), s.sent...)
}

type fakeDialer struct {
	mu      sync.Mutex
	streams []*fakeStream
	failN   int
	dials   int
}

func (d *fakeDialer) Dial(ctx context.Context, id string) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failN > 0 {
		d.failN--
		return nil, errors.New("connection refused")
	}
	s := newFakeStream(id)
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) stream(i int) *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.streams) {
		return nil
	}
	return d.streams[i]
}

// liveStreams counts dialed streams not yet closed.
func (d *fakeDialer) liveStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.streams {
		if s.closes.Load() == 0 {
			n++
		}
	}
	return n
}

type fakeHistory struct {
	mu sync.Mutex
	// msgs per conversation
	msgs map[string][]domain.ChatMessage
	// gate, when set for a conversation, holds the response until closed
	gate map[string]chan struct{}
	// ignoreCtx makes a gated call wait for the gate even when cancelled
	ignoreCtx bool
	err       error
	cancelled atomic.Int32
}

func (h *fakeHistory) History(ctx context.Context, id string) ([]domain.ChatMessage, error) {
	h.mu.Lock()
	gate := h.gate[id]
	msgs := h.msgs[id]
	err := h.err
	h.mu.Unlock()

	if gate != nil {
		if h.ignoreCtx {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				h.cancelled.Add(1)
				return nil, ctx.Err()
			}
		}
	}
	return msgs, err
}
