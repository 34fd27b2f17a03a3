package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/joss/fedcli/internal/api"
	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/logging"
	"github.com/joss/fedcli/internal/stomp"
)

// SendDestination is where outgoing messages are published.
const SendDestination = "/app/chat.send"

// Topic is the destination carrying a conversation's messages.
func Topic(conversationID string) string {
	return "/topic/user/" + conversationID
}

// StompDialer dials the broker once per Stream, authenticating the CONNECT
// frame with the session's bearer token.
type StompDialer struct {
	URL    string
	Tokens api.TokenSource
}

var _ Dialer = (*StompDialer)(nil)

func (d *StompDialer) Dial(ctx context.Context, conversationID string) (Stream, error) {
	token, err := d.Tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	conn, err := stomp.Dial(ctx, d.URL, map[string]string{
		stomp.HdrAuthorization: "Bearer " + token,
	})
	if err != nil {
		return nil, err
	}
	sub, err := conn.Subscribe(Topic(conversationID))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	s := &stompStream{
		conn:   conn,
		out:    make(chan domain.ChatMessage, 64),
		closed: make(chan struct{}),
		log:    logging.New("transport").WithConversation(conversationID),
	}
	go s.decode(sub)
	return s, nil
}

type stompStream struct {
	conn      *stomp.Conn
	out       chan domain.ChatMessage
	closed    chan struct{}
	closeOnce sync.Once
	log       *logging.Logger
}

func (s *stompStream) Messages() <-chan domain.ChatMessage { return s.out }

func (s *stompStream) decode(sub *stomp.Subscription) {
	defer close(s.out)
	defer logging.Recover("transport")

	for f := range sub.C {
		var m domain.ChatMessage
		if err := json.Unmarshal(f.Body, &m); err != nil {
			s.log.Warn("message_decode_failed", map[string]interface{}{
				"message_id": f.Header(stomp.HdrMessageID),
			}, err)
			continue
		}
		select {
		case s.out <- m:
		case <-s.closed:
			return
		}
	}
	if err := s.conn.Err(); err != nil {
		s.log.Warn("stream_ended", nil, err)
	}
}

func (s *stompStream) Send(msg domain.OutgoingMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.conn.Send(SendDestination, "application/json", body)
}

func (s *stompStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}
