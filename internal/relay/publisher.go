package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/joss/fedcli/internal/logging"
	"github.com/joss/fedcli/internal/runtime"
)

// Publisher delivers envelopes to a broker.
type Publisher interface {
	Publish(ctx context.Context, key string, body any, meta Meta) error
	Close() error
}

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("relay: publisher closed")

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type connection interface {
	channel() (channel, error)
	IsClosed() bool
	Close() error
}

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) channel() (channel, error) {
	return c.Channel()
}

func dialAMQP(url string) (connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// AMQPPublisher publishes JSON to a durable topic exchange. A failed publish
// drops the connection; the next publish redials with backoff.
type AMQPPublisher struct {
	url      string
	exchange string
	attempts int
	log      *logging.Logger
	dial     func(url string) (connection, error)
	backoff  *runtime.Backoff

	mu     sync.Mutex
	conn   connection
	ch     channel
	closed bool
}

// NewAMQPPublisher returns a publisher that connects lazily.
func NewAMQPPublisher(url, exchange string) *AMQPPublisher {
	return &AMQPPublisher{
		url:      url,
		exchange: exchange,
		attempts: 5,
		log:      logging.New("relay"),
		dial:     dialAMQP,
		backoff:  runtime.NewBackoff(500*time.Millisecond, 30*time.Second),
	}
}

// Connect dials eagerly so that configuration errors surface at startup.
func (p *AMQPPublisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureLocked(ctx)
}

func (p *AMQPPublisher) ensureLocked(ctx context.Context) error {
	if p.closed {
		return ErrPublisherClosed
	}
	if p.ch != nil && p.conn != nil && !p.conn.IsClosed() {
		return nil
	}
	p.resetLocked()

	var lastErr error
	for i := 1; i <= p.attempts; i++ {
		conn, ch, err := p.open()
		if err == nil {
			if i > 1 {
				p.log.Info("broker_connected", map[string]interface{}{"attempt": i})
			}
			p.backoff.Reset()
			p.conn, p.ch = conn, ch
			return nil
		}
		lastErr = err

		if i == p.attempts {
			break
		}
		wait := p.backoff.Next()
		p.log.Warn("broker_dial_failed", map[string]interface{}{
			"attempt":  i,
			"sleep_ms": wait.Milliseconds(),
		}, err)
		if !runtime.Sleep(ctx, wait) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("connect to broker after %d attempts: %w", p.attempts, lastErr)
}

func (p *AMQPPublisher) open() (connection, channel, error) {
	conn, err := p.dial(p.url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func (p *AMQPPublisher) resetLocked() {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// Publish marshals body and sends it persistently under key.
func (p *AMQPPublisher) Publish(ctx context.Context, key string, body any, meta Meta) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	msgID := meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := msgID
	if meta.CorrelationID != nil {
		cid = *meta.CorrelationID
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLocked(ctx); err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     msgID,
		CorrelationId: cid,
		Type:          meta.Type,
		Timestamp:     time.Now(),
		Body:          data,
	})
	if err != nil {
		p.resetLocked()
		return err
	}
	p.log.Debug("published", map[string]interface{}{"key": key, "exchange": p.exchange})
	return nil
}

// Close releases the connection. Publish fails afterwards.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.resetLocked()
	return nil
}
