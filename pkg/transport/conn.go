package transport

// Conn is the boundary between a session and the framing layer.
//
// ReadEvent is called from a single goroutine. The Write methods are called
// from the session loop only, so implementations need not serialize them
// against each other; Close may be called concurrently with everything.
type Conn interface {
	// ReadEvent blocks until the next inbound event. It returns ErrClosed
	// after the peer's close has been reported or the connection was closed
	// locally; any other error means the connection is unusable.
	ReadEvent() (Event, error)

	// WritePing sends a liveness probe.
	WritePing(data []byte) error

	// WritePong answers a probe from the peer.
	WritePong(data []byte) error

	// WriteText sends a single text frame.
	WriteText(text string) error

	// WriteBinary sends a single binary frame.
	WriteBinary(data []byte) error

	// Close closes the connection. It is safe to call more than once.
	Close() error

	// RemoteAddr returns the peer's network address.
	RemoteAddr() string
}
