package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/metrics"
)

func startFeed(t *testing.T, src SummarySource, opts ...FeedOption) (*Feed, *manualTicker, context.CancelFunc) {
	t.Helper()
	ticker := newManualTicker()
	opts = append([]FeedOption{
		WithTicker(func(time.Duration) Ticker { return ticker }),
		WithMetrics(metrics.New()),
	}, opts...)
	f := NewFeed(src, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return f, ticker, cancel
}

func next(t *testing.T, f *Feed) Snapshot {
	t.Helper()
	select {
	case s, ok := <-f.Snapshots():
		require.True(t, ok, "snapshots closed")
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot")
	}
	return Snapshot{}
}

func TestFeed_FetchesImmediatelyThenOnTick(t *testing.T) {
	src := &fakeSource{}
	src.push([]domain.ChatSummary{{ConversationID: "c1"}}, nil)
	src.push([]domain.ChatSummary{{ConversationID: "c1"}, {ConversationID: "c2"}}, nil)

	f, ticker, _ := startFeed(t, src)

	first := next(t, f)
	assert.Equal(t, int64(1), first.Seq)
	assert.Len(t, first.Summaries, 1)

	ticker.tick()
	second := next(t, f)
	assert.Equal(t, int64(2), second.Seq)
	assert.Len(t, second.Summaries, 2)
}

func TestFeed_RefreshTriggersFetch(t *testing.T) {
	src := &fakeSource{}
	f, _, _ := startFeed(t, src)
	next(t, f)

	f.Refresh()
	snap := next(t, f)
	assert.Equal(t, int64(2), snap.Seq)
	assert.Equal(t, 2, src.callCount())
}

func TestFeed_FailureYieldsEmptyList(t *testing.T) {
	src := &fakeSource{}
	src.push([]domain.ChatSummary{{ConversationID: "c1"}}, nil)
	src.push(nil, errors.New("connection refused"))
	src.push([]domain.ChatSummary{{ConversationID: "c1"}}, nil)

	f, ticker, _ := startFeed(t, src)
	next(t, f)

	ticker.tick()
	failed := next(t, f)
	require.Error(t, failed.Err)
	assert.NotNil(t, failed.Summaries)
	assert.Empty(t, failed.Summaries)

	ticker.tick()
	recovered := next(t, f)
	assert.NoError(t, recovered.Err)
	assert.Len(t, recovered.Summaries, 1)
}

func TestFeed_OneFetchPerSignalNeverConcurrent(t *testing.T) {
	src := &fakeSource{delay: 5 * time.Millisecond}
	f, ticker, _ := startFeed(t, src)
	next(t, f)

	f.Refresh()
	f.Refresh()
	go ticker.tick()
	f.Refresh()

	var last int64 = 1
	for i := 0; i < 4; i++ {
		s := next(t, f)
		assert.Equal(t, last+1, s.Seq, "snapshots must arrive in fetch order")
		last = s.Seq
	}
	assert.Equal(t, 5, src.callCount())
	assert.Equal(t, int32(1), src.maxSeen.Load(), "fetches overlapped")
}

func TestFeed_SortsSummaries(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{}
	src.push([]domain.ChatSummary{
		{ConversationID: "old", LastMessageTime: domain.LocalTime{Time: now.Add(-time.Hour)}},
		{ConversationID: "never"},
		{ConversationID: "waiting", WaitingForReply: true},
		{ConversationID: "new", LastMessageTime: domain.LocalTime{Time: now}},
	}, nil)

	f, _, _ := startFeed(t, src)
	snap := next(t, f)

	var ids []string
	for _, s := range snap.Summaries {
		ids = append(ids, s.ConversationID)
	}
	assert.Equal(t, []string{"waiting", "new", "old", "never"}, ids)
}

func TestFeed_ObserversSeeEverySnapshot(t *testing.T) {
	src := &fakeSource{}
	ticker := newManualTicker()
	f := NewFeed(src,
		WithTicker(func(time.Duration) Ticker { return ticker }),
		WithMetrics(metrics.New()),
	)

	seen := make(chan int64, 4)
	f.OnSnapshot(func(s Snapshot) { seen <- s.Seq })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	next(t, f)
	assert.Equal(t, int64(1), <-seen)
}

func TestFeed_RunStopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	ticker := newManualTicker()
	m := metrics.New()
	f := NewFeed(src, WithTicker(func(time.Duration) Ticker { return ticker }), WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.Run(ctx) }()

	next(t, f)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	_, open := <-f.Snapshots()
	assert.False(t, open)
	assert.True(t, ticker.stopped.Load())
	assert.Equal(t, int64(1), m.SummaryPolls.Load())
}

func TestFeed_RefreshNeverBlocks(t *testing.T) {
	f := NewFeed(&fakeSource{}, WithMetrics(metrics.New()))
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			f.Refresh()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Refresh blocked without a running feed")
	}
}

func TestFeed_RefreshBeyondQueueCoalesces(t *testing.T) {
	src := &fakeSource{}
	ticker := newManualTicker()
	f := NewFeed(src,
		WithTicker(func(time.Duration) Ticker { return ticker }),
		WithMetrics(metrics.New()),
	)
	for i := 0; i < 40; i++ {
		f.Refresh()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// One initial fetch plus one per queued signal.
	for i := 0; i < 17; i++ {
		next(t, f)
	}
	select {
	case s := <-f.Snapshots():
		t.Fatalf("unexpected fetch seq=%d", s.Seq)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 17, src.callCount())
}
