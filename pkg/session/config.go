package session

import (
	"fmt"
	"time"
)

// Heartbeat constants shared with existing viewers.
const (
	// DefaultHeartbeatInterval is the time between heartbeat checks.
	DefaultHeartbeatInterval = 5 * time.Second

	// DefaultClientTimeout is how long a client may stay silent on the
	// ping/pong channel before it is disconnected.
	DefaultClientTimeout = 10 * time.Second

	// DefaultEventQueue is the inbound event buffer per session.
	DefaultEventQueue = 256
)

// Config holds configuration for individual sessions.
type Config struct {
	// HeartbeatInterval is the time between heartbeat checks. Each check
	// either sends a ping or closes a silent session.
	// Default: 5 seconds.
	HeartbeatInterval time.Duration

	// ClientTimeout is the maximum time without a ping or pong from the
	// client. Must be at least twice HeartbeatInterval so a full probe
	// round-trip fits in the window.
	// Default: 10 seconds.
	ClientTimeout time.Duration

	// EventQueue is the size of the inbound event buffer. When it is full the
	// read goroutine stops reading from the socket.
	// Default: 256.
	EventQueue int

	// Clock drives the heartbeat. Default: the system clock.
	Clock Clock

	// Metrics records session activity. Nil disables metrics.
	Metrics *Metrics
}

// DefaultConfig returns a Config with the standard heartbeat timing.
func DefaultConfig() *Config {
	return &Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		ClientTimeout:     DefaultClientTimeout,
		EventQueue:        DefaultEventQueue,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// WithHeartbeat sets the heartbeat interval and client timeout and returns
// the config for chaining.
func (c *Config) WithHeartbeat(interval, timeout time.Duration) *Config {
	c.HeartbeatInterval = interval
	c.ClientTimeout = timeout
	return c
}

// WithClock sets the clock and returns the config for chaining.
func (c *Config) WithClock(clock Clock) *Config {
	c.Clock = clock
	return c
}

// WithMetrics sets the metrics sink and returns the config for chaining.
func (c *Config) WithMetrics(m *Metrics) *Config {
	c.Metrics = m
	return c
}

// Validate checks the heartbeat timing.
func (c *Config) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat interval must be positive, got %s", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.ClientTimeout <= 0 {
		return fmt.Errorf("%w: client timeout must be positive, got %s", ErrInvalidConfig, c.ClientTimeout)
	}
	if c.ClientTimeout < 2*c.HeartbeatInterval {
		return fmt.Errorf("%w: client timeout %s must be at least twice the heartbeat interval %s",
			ErrInvalidConfig, c.ClientTimeout, c.HeartbeatInterval)
	}
	if c.EventQueue < 0 {
		return fmt.Errorf("%w: event queue must not be negative, got %d", ErrInvalidConfig, c.EventQueue)
	}
	return nil
}

// withDefaults fills unset fields.
func (c *Config) withDefaults() *Config {
	out := c.Clone()
	if out == nil {
		out = DefaultConfig()
	}
	if out.HeartbeatInterval == 0 {
		out.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if out.ClientTimeout == 0 {
		out.ClientTimeout = DefaultClientTimeout
	}
	if out.EventQueue == 0 {
		out.EventQueue = DefaultEventQueue
	}
	if out.Clock == nil {
		out.Clock = SystemClock()
	}
	return out
}
