package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/fedcli/internal/chat"
	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/metrics"
)

func strptr(s string) *string { return &s }

func summary(id string, status domain.AssignmentStatus, holder *string, waiting bool) domain.ChatSummary {
	return domain.ChatSummary{ConversationID: id, Status: status, AssignedAgentID: holder, WaitingForReply: waiting}
}

type published struct {
	key  string
	env  Envelope[AssignmentChange]
	meta Meta
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	fail map[string]bool
}

func (f *fakePublisher) Publish(_ context.Context, key string, body any, meta Meta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	env := body.(Envelope[AssignmentChange])
	if f.fail[env.Data.ConversationID] {
		return errors.New("broker unavailable")
	}
	f.sent = append(f.sent, published{key: key, env: env, meta: meta})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestDiff(t *testing.T) {
	last := map[string]AssignmentChange{
		"c1": {ConversationID: "c1", Status: domain.StatusFree, WaitingForReply: true},
		"c2": {ConversationID: "c2", Status: domain.StatusAssigned, AssignedAgentID: strptr("A1")},
	}

	changes := Diff(last, []domain.ChatSummary{
		summary("c1", domain.StatusFree, nil, true),
		summary("c2", domain.StatusAssigned, strptr("A2"), false),
		summary("c3", domain.StatusFree, nil, false),
	})

	require.Len(t, changes, 2)
	assert.Equal(t, "c2", changes[0].ConversationID)
	assert.Equal(t, "A2", *changes[0].AssignedAgentID)
	assert.Equal(t, "c3", changes[1].ConversationID)
}

func TestDiffCopiesHolder(t *testing.T) {
	holder := "A1"
	changes := Diff(nil, []domain.ChatSummary{summary("c1", domain.StatusAssigned, &holder, false)})
	holder = "A9"
	assert.Equal(t, "A1", *changes[0].AssignedAgentID)
}

func TestEnvelopeJSON(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	env := NewEnvelope("fedcli", AssignmentChange{ConversationID: "c1", Status: domain.StatusFree}, now)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var parsed map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, EventAssignment, parsed["meta"]["type"])
	assert.Equal(t, "fedcli", parsed["meta"]["producer"])
	assert.NotEmpty(t, parsed["meta"]["id"])
	assert.Equal(t, "c1", parsed["data"]["conversationId"])
	assert.Nil(t, parsed["data"]["assignedAgentId"])
}

func TestRelayPublishesOnlyChanges(t *testing.T) {
	pub := &fakePublisher{}
	m := metrics.New()
	r := New(pub, WithMetrics(m))
	ctx := context.Background()

	n := r.Handle(ctx, chat.Snapshot{Seq: 1, Summaries: []domain.ChatSummary{
		summary("c1", domain.StatusFree, nil, true),
		summary("c2", domain.StatusFree, nil, false),
	}})
	assert.Equal(t, 2, n)

	n = r.Handle(ctx, chat.Snapshot{Seq: 2, Summaries: []domain.ChatSummary{
		summary("c1", domain.StatusAssigned, strptr("A1"), true),
		summary("c2", domain.StatusFree, nil, false),
	}})
	assert.Equal(t, 1, n)

	require.Len(t, pub.sent, 3)
	last := pub.sent[2]
	assert.Equal(t, EventAssignment, last.key)
	assert.Equal(t, "c1", last.env.Data.ConversationID)
	assert.Equal(t, domain.StatusAssigned, last.env.Data.Status)
	assert.Equal(t, last.env.Meta.ID, last.meta.ID)
	assert.Equal(t, int64(3), m.RelayPublished.Load())
}

func TestRelaySkipsFailedAndStaleSnapshots(t *testing.T) {
	pub := &fakePublisher{}
	r := New(pub, WithMetrics(metrics.New()))
	ctx := context.Background()

	assert.Equal(t, 1, r.Handle(ctx, chat.Snapshot{Seq: 5, Summaries: []domain.ChatSummary{
		summary("c1", domain.StatusAssigned, strptr("A1"), false),
	}}))

	// A failed poll reports no conversations; that is not a release.
	assert.Zero(t, r.Handle(ctx, chat.Snapshot{Seq: 6, Summaries: []domain.ChatSummary{}, Err: errors.New("timeout")}))

	assert.Zero(t, r.Handle(ctx, chat.Snapshot{Seq: 4, Summaries: []domain.ChatSummary{
		summary("c1", domain.StatusFree, nil, false),
	}}))
	assert.Len(t, pub.sent, 1)
}

func TestRelayRetriesFailedChange(t *testing.T) {
	pub := &fakePublisher{fail: map[string]bool{"c1": true}}
	m := metrics.New()
	r := New(pub, WithMetrics(m))
	ctx := context.Background()
	snap := []domain.ChatSummary{summary("c1", domain.StatusFree, nil, true)}

	assert.Zero(t, r.Handle(ctx, chat.Snapshot{Seq: 1, Summaries: snap}))
	assert.Equal(t, int64(1), m.RelayFailures.Load())

	pub.fail = nil
	assert.Equal(t, 1, r.Handle(ctx, chat.Snapshot{Seq: 2, Summaries: snap}))
}

func TestRelayRunStopsOnClose(t *testing.T) {
	pub := &fakePublisher{}
	r := New(pub, WithMetrics(metrics.New()))
	snaps := make(chan chat.Snapshot, 1)
	snaps <- chat.Snapshot{Seq: 1, Summaries: []domain.ChatSummary{summary("c1", domain.StatusFree, nil, false)}}
	close(snaps)

	require.NoError(t, r.Run(context.Background(), snaps))
	assert.Len(t, pub.sent, 1)
}

type fakeChannel struct {
	mu        sync.Mutex
	declared  []string
	published []amqp.Publishing
	failNext  bool
	closed    bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		c.failNext = false
		return amqp.ErrClosed
	}
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

type fakeConn struct {
	ch     *fakeChannel
	closed bool
}

func (c *fakeConn) channel() (channel, error) { return c.ch, nil }
func (c *fakeConn) IsClosed() bool            { return c.closed }
func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func newTestPublisher(dial func(string) (connection, error)) *AMQPPublisher {
	p := NewAMQPPublisher("amqp://test", "federation.chat")
	p.dial = dial
	p.backoff.Initial = time.Millisecond
	p.backoff.Max = time.Millisecond
	return p
}

func TestAMQPPublisherRedialsAfterFailure(t *testing.T) {
	var conns []*fakeConn
	p := newTestPublisher(func(string) (connection, error) {
		c := &fakeConn{ch: &fakeChannel{}}
		conns = append(conns, c)
		return c, nil
	})
	ctx := context.Background()

	env := NewEnvelope("fedcli", AssignmentChange{ConversationID: "c1"}, time.Now())
	require.NoError(t, p.Publish(ctx, EventAssignment, env, env.Meta))
	require.Len(t, conns, 1)
	assert.Equal(t, []string{"federation.chat:topic"}, conns[0].ch.declared)

	msg := conns[0].ch.published[0]
	assert.Equal(t, env.Meta.ID, msg.MessageId)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, EventAssignment, msg.Type)

	conns[0].ch.failNext = true
	assert.Error(t, p.Publish(ctx, EventAssignment, env, env.Meta))
	assert.True(t, conns[0].closed)

	require.NoError(t, p.Publish(ctx, EventAssignment, env, env.Meta))
	assert.Len(t, conns, 2)
}

func TestAMQPPublisherGivesUp(t *testing.T) {
	dials := 0
	p := newTestPublisher(func(string) (connection, error) {
		dials++
		return nil, errors.New("connection refused")
	})

	err := p.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, p.attempts, dials)
}

func TestAMQPPublisherClosed(t *testing.T) {
	p := newTestPublisher(func(string) (connection, error) {
		return &fakeConn{ch: &fakeChannel{}}, nil
	})
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	err := p.Publish(context.Background(), EventAssignment, struct{}{}, Meta{})
	assert.ErrorIs(t, err, ErrPublisherClosed)
}

func TestLinePublisherWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	pub := NewLinePublisher(&buf)
	r := New(pub, WithMetrics(metrics.New()))

	n := r.Handle(context.Background(), chat.Snapshot{Seq: 1, Summaries: []domain.ChatSummary{
		summary("c1", domain.StatusFree, nil, true),
		summary("c2", domain.StatusAssigned, strptr("A1"), false),
	}})
	require.Equal(t, 2, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var env Envelope[AssignmentChange]
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &env))
	assert.Equal(t, EventAssignment, env.Meta.Type)
	assert.Equal(t, "A1", *env.Data.AssignedAgentID)

	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.Publish(context.Background(), EventAssignment, env, env.Meta), ErrPublisherClosed)
}
