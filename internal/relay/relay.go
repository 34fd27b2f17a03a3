package relay

import (
	"context"
	"time"

	"github.com/joss/fedcli/internal/chat"
	"github.com/joss/fedcli/internal/logging"
	"github.com/joss/fedcli/internal/metrics"
)

// Relay turns feed snapshots into assignment change events.
type Relay struct {
	pub      Publisher
	producer string
	log      *logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	last    map[string]AssignmentChange
	lastSeq int64
}

// Option configures a Relay.
type Option func(*Relay)

// WithProducer overrides DefaultProducer.
func WithProducer(name string) Option {
	return func(r *Relay) { r.producer = name }
}

// WithMetrics records publish outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithClock sets the envelope time source.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

func New(pub Publisher, opts ...Option) *Relay {
	r := &Relay{
		pub:      pub,
		producer: DefaultProducer,
		log:      logging.New("relay"),
		metrics:  metrics.Global(),
		now:      time.Now,
		last:     make(map[string]AssignmentChange),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle publishes every change in snap since the last published state.
// Failed snapshots and snapshots older than the last handled are skipped.
// A change that fails to publish is retried with the next snapshot.
// It returns the number of events published.
func (r *Relay) Handle(ctx context.Context, snap chat.Snapshot) int {
	if snap.Err != nil || snap.Seq <= r.lastSeq {
		return 0
	}
	r.lastSeq = snap.Seq

	published := 0
	for _, change := range Diff(r.last, snap.Summaries) {
		env := NewEnvelope(r.producer, change, r.now())
		err := r.pub.Publish(ctx, EventAssignment, env, env.Meta)
		r.metrics.RecordRelay(err == nil)
		if err != nil {
			r.log.WithConversation(change.ConversationID).Warn("publish_failed", nil, err)
			if ctx.Err() != nil {
				return published
			}
			continue
		}
		r.last[change.ConversationID] = change
		published++
	}
	if published > 0 {
		r.log.Info("assignments_published", map[string]interface{}{"count": published, "seq": snap.Seq})
	}
	return published
}

// Run handles snapshots until the channel closes or ctx is done.
func (r *Relay) Run(ctx context.Context, snaps <-chan chat.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			r.Handle(ctx, snap)
		}
	}
}
