package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for session and manager operations.
var (
	// ErrSessionClosed is returned when an operation needs an open session.
	ErrSessionClosed = errors.New("session: closed")

	// ErrSessionNotFound is returned when a session id is not registered.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrSerialization is returned when a payload cannot be encoded.
	ErrSerialization = errors.New("session: payload serialization failed")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("session: invalid config")

	// ErrShuttingDown is returned by Manager.Create after Shutdown.
	ErrShuttingDown = errors.New("session: manager shutting down")
)

// SessionError wraps an error with session context.
type SessionError struct {
	SessionID uint32
	Op        string
	Err       error
}

// Error returns the error message with session context.
func (e *SessionError) Error() string {
	return fmt.Sprintf("session %d: %s: %v", e.SessionID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewSessionError creates a new SessionError.
func NewSessionError(sessionID uint32, op string, err error) *SessionError {
	return &SessionError{
		SessionID: sessionID,
		Op:        op,
		Err:       err,
	}
}

// CloseReason records why a session ended.
type CloseReason string

const (
	ReasonNone           CloseReason = ""
	ReasonClosed         CloseReason = "closed"          // Close called by the application
	ReasonPeerClosed     CloseReason = "peer_closed"     // Client finished the closing handshake or dropped
	ReasonTransportError CloseReason = "transport_error" // Unreadable input or failed write
	ReasonTimeout        CloseReason = "timeout"         // No ping/pong within ClientTimeout
	ReasonShutdown       CloseReason = "shutdown"        // Manager shutdown
)

// String returns the reason as a string.
func (r CloseReason) String() string {
	if r == ReasonNone {
		return "none"
	}
	return string(r)
}
