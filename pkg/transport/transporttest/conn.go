// Package transporttest provides an in-memory transport.Conn for tests.
package transporttest

import (
	"sync"
	"time"

	"github.com/casta-dev/casta/pkg/transport"
)

// Frame is an outbound frame recorded by Conn.
type Frame struct {
	Kind transport.EventKind
	Data []byte
}

// Text returns the frame body as a string.
func (f Frame) Text() string {
	return string(f.Data)
}

type readResult struct {
	ev  transport.Event
	err error
}

// Conn is a fake transport.Conn. Tests inject inbound events and inspect the
// frames the session wrote.
type Conn struct {
	inbound chan readResult
	closeCh chan struct{}

	mu         sync.Mutex
	frames     []Frame
	changed    chan struct{}
	closed     bool
	closeCalls int
	writeErr   error
	remoteAddr string
}

var _ transport.Conn = (*Conn)(nil)

// NewConn creates a fake connection.
func NewConn() *Conn {
	return &Conn{
		inbound:    make(chan readResult, 256),
		closeCh:    make(chan struct{}),
		changed:    make(chan struct{}),
		remoteAddr: "127.0.0.1:50000",
	}
}

// Inject queues an inbound event.
func (c *Conn) Inject(ev transport.Event) {
	c.inbound <- readResult{ev: ev}
}

// InjectErr queues a read error.
func (c *Conn) InjectErr(err error) {
	c.inbound <- readResult{err: err}
}

// CloseRemote simulates the peer's closing handshake: an EventClose followed
// by transport.ErrClosed.
func (c *Conn) CloseRemote(code int) {
	c.inbound <- readResult{ev: transport.Event{Kind: transport.EventClose, CloseCode: code}}
	c.inbound <- readResult{err: transport.ErrClosed}
}

// SetWriteError makes every subsequent write fail with err.
func (c *Conn) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// ReadEvent implements transport.Conn.
func (c *Conn) ReadEvent() (transport.Event, error) {
	select {
	case r := <-c.inbound:
		return r.ev, r.err
	case <-c.closeCh:
		return transport.Event{}, transport.ErrClosed
	}
}

// WritePing implements transport.Conn.
func (c *Conn) WritePing(data []byte) error {
	return c.record(transport.EventPing, data)
}

// WritePong implements transport.Conn.
func (c *Conn) WritePong(data []byte) error {
	return c.record(transport.EventPong, data)
}

// WriteText implements transport.Conn.
func (c *Conn) WriteText(text string) error {
	return c.record(transport.EventText, []byte(text))
}

// WriteBinary implements transport.Conn.
func (c *Conn) WriteBinary(data []byte) error {
	return c.record(transport.EventBinary, data)
}

func (c *Conn) record(kind transport.EventKind, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, Frame{Kind: kind, Data: buf})
	c.notifyLocked()
	return nil
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)
	c.notifyLocked()
	return nil
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

func (c *Conn) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Frames returns a copy of every frame written so far.
func (c *Conn) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// FramesOf returns the recorded frames of one kind.
func (c *Conn) FramesOf(kind transport.EventKind) []Frame {
	var out []Frame
	for _, f := range c.Frames() {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseCalls returns how many times Close was called.
func (c *Conn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// WaitFrames waits until at least n frames were written or timeout elapses.
// It returns the frames seen and whether n was reached.
func (c *Conn) WaitFrames(n int, timeout time.Duration) ([]Frame, bool) {
	return c.wait(timeout, func() bool { return len(c.frames) >= n })
}

// WaitClosed waits until Close is called or timeout elapses.
func (c *Conn) WaitClosed(timeout time.Duration) bool {
	_, ok := c.wait(timeout, func() bool { return c.closed })
	return ok
}

func (c *Conn) wait(timeout time.Duration, done func() bool) ([]Frame, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		c.mu.Lock()
		if done() {
			out := make([]Frame, len(c.frames))
			copy(out, c.frames)
			c.mu.Unlock()
			return out, true
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ch:
		case <-deadline.C:
			return c.Frames(), false
		}
	}
}
