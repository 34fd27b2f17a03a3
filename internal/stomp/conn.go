package stomp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/net/websocket"

	"github.com/joss/fedcli/internal/logging"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("stomp: connection closed")

// ReadFrame reads the next non heart-beat frame from ws.
func ReadFrame(ws *websocket.Conn) (Frame, error) {
	for {
		var msg []byte
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			return Frame{}, err
		}
		f, err := Parse(msg)
		if errors.Is(err, ErrHeartbeat) {
			continue
		}
		return f, err
	}
}

// WriteFrame writes f as one websocket text message.
func WriteFrame(ws *websocket.Conn, f Frame) error {
	return websocket.Message.Send(ws, string(f.Marshal()))
}

// Subscription receives MESSAGE frames for one destination.
// C is closed when the connection stops.
type Subscription struct {
	ID          string
	Destination string
	C           <-chan Frame

	c        chan Frame
	conn     *Conn
	done     chan struct{}
	doneOnce sync.Once
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() error {
	var err error
	s.doneOnce.Do(func() {
		close(s.done)
		s.conn.subsMu.Lock()
		delete(s.conn.subs, s.ID)
		s.conn.subsMu.Unlock()
		err = s.conn.write(NewFrame(CmdUnsubscribe, HdrID, s.ID))
	})
	return err
}

// Conn is a client STOMP session over a websocket.
type Conn struct {
	ws  *websocket.Conn
	log *logging.Logger

	writeMu sync.Mutex

	subsMu sync.Mutex
	subs   map[string]*Subscription

	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial opens the websocket at rawURL and performs the CONNECT handshake.
// headers are added to the CONNECT frame (e.g. Authorization).
func Dial(ctx context.Context, rawURL string, headers map[string]string) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	origin := "http://" + u.Host
	if u.Scheme == "wss" {
		origin = "https://" + u.Host
	}

	cfg, err := websocket.NewConfig(rawURL, origin)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	c := &Conn{
		ws:      ws,
		log:     logging.New("stomp"),
		subs:    make(map[string]*Subscription),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	if err := c.handshake(ctx, u.Hostname(), headers); err != nil {
		ws.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

func (c *Conn) handshake(ctx context.Context, host string, headers map[string]string) error {
	stop := context.AfterFunc(ctx, func() { c.ws.Close() })
	defer stop()

	connect := NewFrame(CmdConnect,
		HdrAcceptVersion, "1.2,1.1",
		HdrHost, host,
		HdrHeartBeat, "0,0",
	)
	for k, v := range headers {
		connect.Headers[k] = v
	}
	if err := WriteFrame(c.ws, connect); err != nil {
		return fmt.Errorf("send CONNECT: %w", err)
	}

	f, err := ReadFrame(c.ws)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read CONNECTED: %w", err)
	}
	switch f.Command {
	case CmdConnected:
		c.log.Debug("connected", map[string]interface{}{"version": f.Header(HdrVersion)})
		return nil
	case CmdError:
		return frameError(f)
	default:
		return fmt.Errorf("unexpected %s frame during handshake", f.Command)
	}
}

func (c *Conn) write(f Frame) error {
	select {
	case <-c.closing:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := WriteFrame(c.ws, f); err != nil {
		return fmt.Errorf("write %s: %w", f.Command, err)
	}
	return nil
}

// Subscribe registers interest in destination.
func (c *Conn) Subscribe(destination string) (*Subscription, error) {
	ch := make(chan Frame, 64)
	sub := &Subscription{
		ID:          "sub-" + ulid.Make().String(),
		Destination: destination,
		C:           ch,
		c:           ch,
		conn:        c,
		done:        make(chan struct{}),
	}

	c.subsMu.Lock()
	select {
	case <-c.done:
		c.subsMu.Unlock()
		return nil, ErrClosed
	default:
	}
	c.subs[sub.ID] = sub
	c.subsMu.Unlock()

	err := c.write(NewFrame(CmdSubscribe,
		HdrID, sub.ID,
		HdrDestination, destination,
		"ack", "auto",
	))
	if err != nil {
		c.subsMu.Lock()
		delete(c.subs, sub.ID)
		c.subsMu.Unlock()
		return nil, err
	}
	return sub, nil
}

// Send publishes body to destination.
func (c *Conn) Send(destination, contentType string, body []byte) error {
	f := NewFrame(CmdSend, HdrDestination, destination)
	if contentType != "" {
		f.Headers[HdrContentType] = contentType
	}
	f.Body = body
	return c.write(f)
}

// Done is closed once the connection has stopped reading, whether by Close
// or by a transport failure.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection stopped; nil after a clean Close.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

// Close sends DISCONNECT and closes the socket. Only the first call has any
// effect; later calls return nil.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)

		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_ = WriteFrame(c.ws, NewFrame(CmdDisconnect))
		c.writeMu.Unlock()

		err = c.ws.Close()
		<-c.done
	})
	return err
}

func (c *Conn) readLoop() {
	defer func() {
		c.subsMu.Lock()
		for _, s := range c.subs {
			close(s.c)
		}
		c.subs = map[string]*Subscription{}
		close(c.done)
		c.subsMu.Unlock()
	}()
	defer logging.Recover("stomp")

	for {
		f, err := ReadFrame(c.ws)
		if err != nil {
			select {
			case <-c.closing:
			default:
				c.setErr(fmt.Errorf("read: %w", err))
				c.log.Warn("connection_lost", nil, err)
			}
			return
		}

		switch f.Command {
		case CmdMessage:
			c.deliver(f)
		case CmdError:
			fe := frameError(f)
			c.setErr(fe)
			c.log.Warn("broker_error", nil, fe)
			c.ws.Close()
			return
		case CmdReceipt:
			c.log.Debug("receipt", map[string]interface{}{"id": f.Header(HdrReceiptID)})
		}
	}
}

func (c *Conn) deliver(f Frame) {
	id := f.Header(HdrSubscription)
	c.subsMu.Lock()
	sub, ok := c.subs[id]
	c.subsMu.Unlock()
	if !ok {
		// Brokers that omit the subscription header route by destination.
		dest := f.Header(HdrDestination)
		c.subsMu.Lock()
		for _, s := range c.subs {
			if strings.EqualFold(s.Destination, dest) {
				sub, ok = s, true
				break
			}
		}
		c.subsMu.Unlock()
	}
	if !ok {
		return
	}

	select {
	case sub.c <- f:
	case <-sub.done:
	case <-c.closing:
	}
}
