package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Options configures a WebSocketConn.
type Options struct {
	// WriteTimeout bounds every outbound frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// MaxMessageSize is the maximum size of an inbound message.
	// 0 means no limit.
	// Default: 64KB.
	MaxMessageSize int64
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// WebSocketConn adapts a gorilla *websocket.Conn to Conn.
//
// Control frames are surfaced as events instead of being answered here:
// gorilla's default ping handler would reply on its own, but pong replies
// belong to the session so that liveness bookkeeping and writes stay on one
// goroutine.
type WebSocketConn struct {
	conn *websocket.Conn
	opts Options

	// Only touched by the reading goroutine (handlers run inside ReadMessage).
	pending    []Event
	peerClosed bool

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ Conn = (*WebSocketConn)(nil)

// NewWebSocketConn wraps conn. The caller must not read from conn afterwards.
func NewWebSocketConn(conn *websocket.Conn, opts Options) *WebSocketConn {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultOptions().WriteTimeout
	}

	c := &WebSocketConn{conn: conn, opts: opts}

	if opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}
	conn.SetPingHandler(func(data string) error {
		c.pending = append(c.pending, PingEvent([]byte(data)))
		return nil
	})
	conn.SetPongHandler(func(data string) error {
		c.pending = append(c.pending, PongEvent([]byte(data)))
		return nil
	})

	// Keep gorilla's close echo, just record that it happened.
	echoClose := conn.CloseHandler()
	conn.SetCloseHandler(func(code int, text string) error {
		c.pending = append(c.pending, Event{Kind: EventClose, CloseCode: code})
		return echoClose(code, text)
	})

	return c
}

// ReadEvent implements Conn.
func (c *WebSocketConn) ReadEvent() (Event, error) {
	for {
		if len(c.pending) > 0 {
			ev := c.pending[0]
			c.pending[0] = Event{}
			c.pending = c.pending[1:]
			return ev, nil
		}
		if c.peerClosed || c.closed.Load() {
			return Event{}, ErrClosed
		}

		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				// The close handler may have queued an EventClose; drain it first.
				c.peerClosed = true
				continue
			}
			if c.closed.Load() {
				return Event{}, ErrClosed
			}
			return Event{}, err
		}

		switch mt {
		case websocket.TextMessage:
			c.pending = append(c.pending, Event{Kind: EventText, Data: data})
		case websocket.BinaryMessage:
			c.pending = append(c.pending, Event{Kind: EventBinary, Data: data})
		}
	}
}

// WritePing implements Conn.
func (c *WebSocketConn) WritePing(data []byte) error {
	return c.conn.WriteControl(websocket.PingMessage, data, c.deadline())
}

// WritePong implements Conn.
func (c *WebSocketConn) WritePong(data []byte) error {
	return c.conn.WriteControl(websocket.PongMessage, data, c.deadline())
}

// WriteText implements Conn.
func (c *WebSocketConn) WriteText(text string) error {
	c.conn.SetWriteDeadline(c.deadline())
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// WriteBinary implements Conn.
func (c *WebSocketConn) WriteBinary(data []byte) error {
	c.conn.SetWriteDeadline(c.deadline())
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Close sends a normal-closure frame (best effort) and closes the socket.
func (c *WebSocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr implements Conn.
func (c *WebSocketConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Underlying returns the wrapped gorilla connection.
func (c *WebSocketConn) Underlying() *websocket.Conn {
	return c.conn
}

func (c *WebSocketConn) deadline() time.Time {
	return time.Now().Add(c.opts.WriteTimeout)
}
