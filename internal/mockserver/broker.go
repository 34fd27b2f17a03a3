package mockserver

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"golang.org/x/net/websocket"

	"github.com/joss/fedcli/internal/chat"
	"github.com/joss/fedcli/internal/domain"
	"github.com/joss/fedcli/internal/logging"
	"github.com/joss/fedcli/internal/session"
	"github.com/joss/fedcli/internal/stomp"
)

const topicPrefix = "/topic/user/"

// broker is a minimal STOMP message broker: CONNECT with a bearer token,
// SUBSCRIBE to conversation topics, SEND to the chat destination.
type broker struct {
	state  *State
	issuer *issuer
	log    *logging.Logger

	mu     sync.Mutex
	conns  map[*brokerConn]struct{}
	closed bool
}

type brokerConn struct {
	ws     *websocket.Conn
	claims *session.Claims

	writeMu sync.Mutex

	subsMu sync.Mutex
	subs   map[string]string // subscription id -> destination
}

func newBroker(state *State, iss *issuer) *broker {
	return &broker{
		state:  state,
		issuer: iss,
		log:    logging.New("broker"),
		conns:  make(map[*brokerConn]struct{}),
	}
}

func (b *broker) handler() websocket.Handler {
	return b.serve
}

func (c *brokerConn) write(f stomp.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return stomp.WriteFrame(c.ws, f)
}

func (c *brokerConn) fail(msg string) {
	_ = c.write(stomp.NewFrame(stomp.CmdError, stomp.HdrMessage, msg))
}

func (b *broker) serve(ws *websocket.Conn) {
	defer ws.Close()

	conn, ok := b.connect(ws)
	if !ok {
		return
	}
	if !b.register(conn) {
		return
	}
	defer b.unregister(conn)

	log := b.log.WithUser(conn.claims.UserID)
	log.Debug("connected", nil)
	for {
		f, err := stomp.ReadFrame(ws)
		if err != nil {
			log.Debug("disconnected", map[string]interface{}{"reason": err.Error()})
			return
		}
		switch f.Command {
		case stomp.CmdSubscribe:
			if !b.subscribe(conn, f) {
				return
			}
		case stomp.CmdUnsubscribe:
			conn.subsMu.Lock()
			delete(conn.subs, f.Header(stomp.HdrID))
			conn.subsMu.Unlock()
		case stomp.CmdSend:
			b.send(conn, f)
		case stomp.CmdDisconnect:
			if r := f.Header(stomp.HdrReceipt); r != "" {
				_ = conn.write(stomp.NewFrame(stomp.CmdReceipt, stomp.HdrReceiptID, r))
			}
			return
		default:
			conn.fail("Unsupported command " + f.Command)
			return
		}
	}
}

func (b *broker) connect(ws *websocket.Conn) (*brokerConn, bool) {
	conn := &brokerConn{ws: ws, subs: make(map[string]string)}
	f, err := stomp.ReadFrame(ws)
	if err != nil {
		return nil, false
	}
	if f.Command != stomp.CmdConnect && f.Command != stomp.CmdStomp {
		conn.fail("Expected CONNECT")
		return nil, false
	}
	token, ok := bearer(f.Header(stomp.HdrAuthorization))
	if !ok {
		conn.fail("Unauthorized")
		return nil, false
	}
	claims, err := b.issuer.verify(token)
	if err != nil {
		b.log.Info("connect_rejected", map[string]interface{}{"reason": err.Error()})
		conn.fail("Unauthorized")
		return nil, false
	}
	conn.claims = claims
	err = conn.write(stomp.NewFrame(stomp.CmdConnected,
		stomp.HdrVersion, "1.2",
		stomp.HdrHeartBeat, "0,0",
	))
	return conn, err == nil
}

func (b *broker) register(c *brokerConn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.conns[c] = struct{}{}
	return true
}

func (b *broker) unregister(c *brokerConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns, c)
}

// subscribe admits a subscription to a conversation topic. Club managers
// follow only their own conversation and athletes none.
func (b *broker) subscribe(c *brokerConn, f stomp.Frame) bool {
	dest := f.Header(stomp.HdrDestination)
	id := f.Header(stomp.HdrID)
	conv, ok := strings.CutPrefix(dest, topicPrefix)
	switch {
	case id == "" || !ok || conv == "":
		c.fail("Invalid subscription to " + dest)
		return false
	case c.claims.Role == domain.RoleAthlete,
		c.claims.Role == domain.RoleClubManager && conv != c.claims.UserID:
		c.fail("Access denied to " + dest)
		return false
	}
	c.subsMu.Lock()
	c.subs[id] = dest
	c.subsMu.Unlock()
	return true
}

func (b *broker) send(c *brokerConn, f stomp.Frame) {
	log := b.log.WithUser(c.claims.UserID)
	if dest := f.Header(stomp.HdrDestination); dest != chat.SendDestination {
		log.Warn("unknown_destination", map[string]interface{}{"destination": dest}, nil)
		return
	}
	var in domain.OutgoingMessage
	if err := json.Unmarshal(f.Body, &in); err != nil {
		log.Warn("malformed_message", nil, err)
		return
	}
	// Rejected messages are dropped: the sender keeps its connection.
	msg, err := b.state.RouteMessage(c.claims.UserID, in)
	if err != nil {
		log.WithConversation(in.ConversationID).Warn("message_rejected", nil, err)
		return
	}
	b.Publish(chat.Topic(msg.ConversationID), msg)
}

// Publish delivers v as JSON to every subscription of destination.
func (b *broker) Publish(destination string, v any) int {
	body, err := json.Marshal(v)
	if err != nil {
		b.log.Error("marshal_failed", nil, err)
		return 0
	}

	b.mu.Lock()
	conns := make([]*brokerConn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	delivered := 0
	for _, c := range conns {
		c.subsMu.Lock()
		var ids []string
		for id, dest := range c.subs {
			if dest == destination {
				ids = append(ids, id)
			}
		}
		c.subsMu.Unlock()

		for _, id := range ids {
			f := stomp.NewFrame(stomp.CmdMessage,
				stomp.HdrDestination, destination,
				stomp.HdrSubscription, id,
				stomp.HdrMessageID, ulid.Make().String(),
				stomp.HdrContentType, "application/json",
			)
			f.Body = body
			if err := c.write(f); err != nil {
				continue
			}
			delivered++
		}
	}
	return delivered
}

// Close drops every connection and refuses new ones.
func (b *broker) Close() {
	b.mu.Lock()
	b.closed = true
	conns := make([]*brokerConn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()
	for _, c := range conns {
		c.ws.Close()
	}
}

// Connections returns the number of open broker connections.
func (b *broker) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}
