package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// LinePublisher writes each event as one JSON line, for following
// assignment changes in a terminal or piping them to another tool.
type LinePublisher struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closed bool
}

func NewLinePublisher(w io.Writer) *LinePublisher {
	return &LinePublisher{enc: json.NewEncoder(w)}
}

func (p *LinePublisher) Publish(_ context.Context, _ string, body any, _ Meta) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	if err := p.enc.Encode(body); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (p *LinePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
