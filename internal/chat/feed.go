// Package chat is the support-chat client core: the summary feed that keeps
// the inbox current, the assignment actions, the pure view derivations over
// an inbox snapshot, and the per-conversation window with its live channel.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/logging"
	"github.com/joss/fedcli/internal/metrics"
)

// DefaultPollInterval is the inbox refresh period.
const DefaultPollInterval = 10 * time.Second

// SummarySource fetches the full conversation summary list.
type SummarySource interface {
	Summaries(ctx context.Context) ([]domain.ChatSummary, error)
}

// Snapshot is the result of one summary fetch. Seq grows by one per fetch,
// so consumers can refuse a snapshot older than the one they show.
type Snapshot struct {
	Seq       int64
	Summaries []domain.ChatSummary
	FetchedAt time.Time
	// Err is the swallowed fetch failure; Summaries is empty when set.
	Err error
}

// Ticker is the subset of *time.Ticker the feed uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithInterval sets the polling period.
func WithInterval(d time.Duration) FeedOption {
	return func(f *Feed) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithTicker replaces the ticker constructor, for tests.
func WithTicker(newTicker func(time.Duration) Ticker) FeedOption {
	return func(f *Feed) { f.newTicker = newTicker }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) FeedOption {
	return func(f *Feed) { f.now = now }
}

// WithMetrics records polls into m instead of the global instance.
func WithMetrics(m *metrics.Metrics) FeedOption {
	return func(f *Feed) { f.metrics = m }
}

// Feed polls summaries on a fixed interval and on demand. Both triggers feed
// one loop, so fetches never overlap: each signal yields exactly one fetch,
// in order.
type Feed struct {
	src       SummarySource
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	now       func() time.Time
	log       *logging.Logger
	metrics   *metrics.Metrics

	refresh chan struct{}
	out     chan Snapshot

	mu        sync.Mutex
	observers []func(Snapshot)
	seq       int64
}

// NewFeed creates a feed reading from src. Call Run to start it.
func NewFeed(src SummarySource, opts ...FeedOption) *Feed {
	f := &Feed{
		src:      src,
		interval: DefaultPollInterval,
		newTicker: func(d time.Duration) Ticker {
			return timeTicker{time.NewTicker(d)}
		},
		now:     time.Now,
		log:     logging.New("feed"),
		metrics: metrics.Global(),
		refresh: make(chan struct{}, 16),
		out:     make(chan Snapshot, 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Refresh asks for a fetch now. It never blocks; signals beyond the queue
// capacity are dropped, since the queued fetches already cover them.
func (f *Feed) Refresh() {
	select {
	case f.refresh <- struct{}{}:
	default:
		f.log.Debug("refresh_dropped", nil)
	}
}

// Snapshots delivers every fetch result. It is closed when Run returns.
func (f *Feed) Snapshots() <-chan Snapshot {
	return f.out
}

// OnSnapshot registers fn to be called synchronously with every snapshot
// before it is delivered on Snapshots. fn must not block.
func (f *Feed) OnSnapshot(fn func(Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, fn)
}

// Run fetches once immediately, then on every tick and every Refresh, until
// ctx is done.
func (f *Feed) Run(ctx context.Context) error {
	defer close(f.out)

	ticker := f.newTicker(f.interval)
	defer ticker.Stop()

	if !f.emit(ctx, f.fetch(ctx)) {
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		case <-f.refresh:
		}
		if !f.emit(ctx, f.fetch(ctx)) {
			return ctx.Err()
		}
	}
}

// Fetch performs one fetch outside the loop, for one-shot commands.
func (f *Feed) Fetch(ctx context.Context) Snapshot {
	return f.fetch(ctx)
}

func (f *Feed) fetch(ctx context.Context) Snapshot {
	f.mu.Lock()
	f.seq++
	seq := f.seq
	f.mu.Unlock()

	start := time.Now()
	list, err := f.src.Summaries(ctx)
	elapsed := time.Since(start).Milliseconds()
	f.metrics.RecordPoll(err == nil, elapsed)

	snap := Snapshot{Seq: seq, FetchedAt: f.now()}
	if err != nil {
		if ctx.Err() == nil {
			f.log.Warn("poll_failed", map[string]interface{}{"seq": seq}, err)
		}
		snap.Err = err
		snap.Summaries = []domain.ChatSummary{}
		return snap
	}

	domain.SortSummaries(list)
	snap.Summaries = list
	f.log.Debug("poll", map[string]interface{}{"seq": seq, "count": len(list), "duration_ms": elapsed})
	return snap
}

func (f *Feed) emit(ctx context.Context, snap Snapshot) bool {
	if ctx.Err() != nil {
		return false
	}
	f.mu.Lock()
	observers := append([]func(Snapshot){}, f.observers...)
	f.mu.Unlock()
	for _, fn := range observers {
		fn(snap)
	}

	select {
	case f.out <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}
