package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultPath             = "/socket.io/"
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
	eventBuffer             = 64
)

var (
	// ErrClosed is reported after Close.
	ErrClosed = errors.New("socketio: connection closed")
	// ErrServerDisconnect is reported when the server ends the namespace session.
	ErrServerDisconnect = errors.New("socketio: disconnected by server")
	// ErrHeartbeatTimeout is reported when the server stops pinging.
	ErrHeartbeatTimeout = errors.New("socketio: heartbeat timeout")
)

// ConnectError is returned when the server refuses the namespace connection.
type ConnectError struct {
	Message string
	Data    json.RawMessage
}

func (e *ConnectError) Error() string {
	return "socketio: connect refused: " + e.Message
}

// Options configures Dial.
type Options struct {
	// Path is the Engine.IO endpoint path. Defaults to "/socket.io/".
	Path string
	// Namespace defaults to "/".
	Namespace string
	// Auth is sent as the namespace CONNECT payload when non-nil.
	Auth   any
	Header http.Header
	Dialer *websocket.Dialer
	// HandshakeTimeout bounds the open and connect exchange when ctx has no deadline.
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// Conn is a Socket.IO client connection over the WebSocket transport.
type Conn struct {
	ws        *websocket.Conn
	namespace string
	sid       string
	heartbeat time.Duration
	logger    *slog.Logger

	events chan Event
	done   chan struct{}
	quit   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial opens an Engine.IO session at rawURL and connects to the namespace.
func Dial(ctx context.Context, rawURL string, opts Options) (*Conn, error) {
	endpoint, err := endpointURL(rawURL, opts.Path)
	if err != nil {
		return nil, err
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "/"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		timeout := opts.HandshakeTimeout
		if timeout <= 0 {
			timeout = defaultHandshakeTimeout
		}
		deadline = time.Now().Add(timeout)
	}

	ws, resp, err := dialer.DialContext(ctx, endpoint, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("socketio: dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("socketio: dial %s: %w", endpoint, err)
	}

	c := &Conn{
		ws:        ws,
		namespace: namespace,
		logger:    logger,
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
		quit:      make(chan struct{}),
	}
	if err := c.handshake(deadline, opts.Auth); err != nil {
		ws.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

func endpointURL(rawURL, path string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("socketio: parse url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("socketio: unsupported scheme %q", u.Scheme)
	}
	if path == "" {
		path = defaultPath
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.Path = path

	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Conn) handshake(deadline time.Time, auth any) error {
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("socketio: set deadline: %w", err)
	}

	msg, err := c.readText()
	if err != nil {
		return fmt.Errorf("socketio: read open packet: %w", err)
	}
	if msg == "" || msg[0] != eioOpen {
		return fmt.Errorf("socketio: expected open packet, got %q", msg)
	}
	var hs handshake
	if err := json.Unmarshal([]byte(msg[1:]), &hs); err != nil {
		return fmt.Errorf("socketio: decode open packet: %w", err)
	}
	c.heartbeat = time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond

	connect := packet{Type: sioConnect, Namespace: c.namespace}
	if auth != nil {
		data, err := json.Marshal(auth)
		if err != nil {
			return fmt.Errorf("socketio: encode auth: %w", err)
		}
		connect.Data = data
	}
	if err := c.writeText(encodePacket(connect)); err != nil {
		return fmt.Errorf("socketio: send connect: %w", err)
	}

	for {
		msg, err := c.readText()
		if err != nil {
			return fmt.Errorf("socketio: await connect: %w", err)
		}
		if msg == "" {
			continue
		}
		switch msg[0] {
		case eioPing:
			if err := c.writeText(string(eioPong)); err != nil {
				return fmt.Errorf("socketio: send pong: %w", err)
			}
			continue
		case eioClose:
			return fmt.Errorf("socketio: await connect: %w", ErrServerDisconnect)
		case eioMessage:
		default:
			continue
		}

		p, err := decodePacket(msg[1:])
		if err != nil || p.Namespace != c.namespace {
			continue
		}
		switch p.Type {
		case sioConnect:
			var ack struct {
				SID string `json:"sid"`
			}
			if len(p.Data) > 0 {
				_ = json.Unmarshal(p.Data, &ack)
			}
			c.sid = ack.SID
			return nil
		case sioConnectError:
			var refusal struct {
				Message string          `json:"message"`
				Data    json.RawMessage `json:"data"`
			}
			if len(p.Data) > 0 {
				_ = json.Unmarshal(p.Data, &refusal)
			}
			return &ConnectError{Message: refusal.Message, Data: refusal.Data}
		}
	}
}

func (c *Conn) readLoop() {
	defer close(c.events)
	defer close(c.done)

	for {
		if c.heartbeat > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.heartbeat))
		} else {
			_ = c.ws.SetReadDeadline(time.Time{})
		}

		msg, err := c.readText()
		if err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				err = ErrHeartbeatTimeout
			}
			c.fail(err)
			return
		}
		if msg == "" {
			continue
		}

		switch msg[0] {
		case eioPing:
			if err := c.writeText(string(eioPong)); err != nil {
				c.fail(err)
				return
			}
		case eioClose:
			c.fail(ErrServerDisconnect)
			return
		case eioMessage:
			if !c.handleMessage(msg[1:]) {
				return
			}
		}
	}
}

// handleMessage returns false when the connection has ended.
func (c *Conn) handleMessage(raw string) bool {
	p, err := decodePacket(raw)
	if err != nil {
		c.logger.Debug("dropping malformed packet", "error", err)
		return true
	}
	if p.Namespace != c.namespace {
		return true
	}

	switch p.Type {
	case sioDisconnect:
		c.fail(ErrServerDisconnect)
		return false
	case sioEvent:
		evt, err := decodeEvent(p.Data)
		if err != nil {
			c.logger.Debug("dropping malformed event", "error", err)
			return true
		}
		select {
		case c.events <- evt:
		case <-c.quit:
			return false
		}
	default:
		c.logger.Debug("ignoring packet", "type", string(p.Type))
	}
	return true
}

func (c *Conn) readText() (string, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind == websocket.TextMessage {
			return string(data), nil
		}
	}
}

func (c *Conn) writeText(msg string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

// fail records the first error and closes the socket.
func (c *Conn) fail(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
	c.ws.Close()
}

// ID returns the Socket.IO session id assigned by the server.
func (c *Conn) ID() string {
	return c.sid
}

// Emit sends an event with the given arguments.
func (c *Conn) Emit(event string, args ...any) error {
	select {
	case <-c.done:
		return c.Err()
	default:
	}
	data, err := encodeEvent(event, args...)
	if err != nil {
		return err
	}
	if err := c.writeText(encodePacket(packet{Type: sioEvent, Namespace: c.namespace, Data: data})); err != nil {
		return fmt.Errorf("socketio: emit %s: %w", event, err)
	}
	return nil
}

// Events delivers inbound events. It is closed when the connection ends.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended, or nil while it is open.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close disconnects from the namespace and closes the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
		select {
		case <-c.done:
		default:
			_ = c.writeText(encodePacket(packet{Type: sioDisconnect, Namespace: c.namespace}))
			c.writeMu.Lock()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
		}
		c.fail(ErrClosed)
	})
	<-c.done
	return nil
}
