package transport

import "errors"

// EventKind identifies the kind of an inbound transport event.
type EventKind uint8

const (
	EventText   EventKind = 0x01 // Text data frame
	EventBinary EventKind = 0x02 // Binary data frame
	EventPing   EventKind = 0x03 // Liveness probe from the peer
	EventPong   EventKind = 0x04 // Reply to one of our probes
	EventClose  EventKind = 0x05 // Peer started the closing handshake
	EventError  EventKind = 0x06 // Unreadable or malformed input
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventText:
		return "Text"
	case EventBinary:
		return "Binary"
	case EventPing:
		return "Ping"
	case EventPong:
		return "Pong"
	case EventClose:
		return "Close"
	case EventError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Transport errors.
var (
	// ErrClosed is returned by ReadEvent once the connection has been closed,
	// either by the peer's closing handshake or locally.
	ErrClosed = errors.New("transport: connection closed")
)

// Event is a single decoded inbound event.
type Event struct {
	Kind EventKind

	// Data holds the frame body for Text, Binary, Ping and Pong events.
	Data []byte

	// Err is set for EventError.
	Err error

	// CloseCode is the status code of an EventClose, when the peer sent one.
	CloseCode int
}

// Text returns the event body as a string.
func (e Event) Text() string {
	return string(e.Data)
}

// TextEvent builds a text event.
func TextEvent(s string) Event {
	return Event{Kind: EventText, Data: []byte(s)}
}

// BinaryEvent builds a binary event.
func BinaryEvent(b []byte) Event {
	return Event{Kind: EventBinary, Data: b}
}

// PingEvent builds a ping event.
func PingEvent(b []byte) Event {
	return Event{Kind: EventPing, Data: b}
}

// PongEvent builds a pong event.
func PongEvent(b []byte) Event {
	return Event{Kind: EventPong, Data: b}
}

// ErrorEvent builds an error event wrapping err.
func ErrorEvent(err error) Event {
	return Event{Kind: EventError, Err: err}
}
