package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/casta-dev/casta/pkg/session"
	"github.com/casta-dev/casta/pkg/transport"
)

// ServerConfig holds configuration for the HTTP/WebSocket server.
type ServerConfig struct {
	// Address is the address to listen on (e.g., ":8080").
	Address string

	// ReadBufferSize is the WebSocket read buffer size in bytes.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size in bytes.
	WriteBufferSize int

	// CheckOrigin validates the Origin header of WebSocket upgrades.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// SessionConfig is the configuration for each viewer session.
	SessionConfig *session.Config

	// Transport configures the WebSocket adapter.
	Transport transport.Options

	// MaxSessions limits concurrent sessions. Zero means no limit.
	MaxSessions int

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 5 seconds.
	ReadHeaderTimeout time.Duration

	// IdleTimeout bounds idle keep-alive connections.
	// Default: 60 seconds.
	IdleTimeout time.Duration

	// EnableMetrics registers Prometheus collectors and serves MetricsPath.
	EnableMetrics bool

	// MetricsPath is where Prometheus metrics are served.
	// Default: "/metrics".
	MetricsPath string

	// MetricsNamespace prefixes every metric name.
	// Default: "casta".
	MetricsNamespace string
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           ":8080",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       SameOriginCheck,
		SessionConfig:     session.DefaultConfig(),
		Transport:         transport.DefaultOptions(),
		ShutdownTimeout:   10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		EnableMetrics:     true,
		MetricsPath:       "/metrics",
		MetricsNamespace:  "casta",
	}
}

// withDefaults returns a copy with every unset field filled in.
func (c *ServerConfig) withDefaults() *ServerConfig {
	defaults := DefaultServerConfig()
	if c == nil {
		return defaults
	}
	out := c.Clone()
	if out.Address == "" {
		out.Address = defaults.Address
	}
	if out.ReadBufferSize == 0 {
		out.ReadBufferSize = defaults.ReadBufferSize
	}
	if out.WriteBufferSize == 0 {
		out.WriteBufferSize = defaults.WriteBufferSize
	}
	if out.CheckOrigin == nil {
		out.CheckOrigin = defaults.CheckOrigin
	}
	if out.SessionConfig == nil {
		out.SessionConfig = defaults.SessionConfig
	}
	if out.Transport.WriteTimeout == 0 {
		out.Transport.WriteTimeout = defaults.Transport.WriteTimeout
	}
	if out.Transport.MaxMessageSize == 0 {
		out.Transport.MaxMessageSize = defaults.Transport.MaxMessageSize
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if out.ReadHeaderTimeout == 0 {
		out.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if out.IdleTimeout == 0 {
		out.IdleTimeout = defaults.IdleTimeout
	}
	if out.MetricsPath == "" {
		out.MetricsPath = defaults.MetricsPath
	}
	if out.MetricsNamespace == "" {
		out.MetricsNamespace = defaults.MetricsNamespace
	}
	return out
}

// SameOriginCheck validates that the WebSocket request origin matches the host.
// Requests without an Origin header (curl, native clients) are allowed.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}
	return originURL.Host == host
}

// AllowOrigins returns a CheckOrigin func that accepts same-origin requests
// and any origin in allowed. A "*" entry accepts every origin.
func AllowOrigins(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimSuffix(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		if SameOriginCheck(r) {
			return true
		}
		return set[strings.ToLower(r.Header.Get("Origin"))]
	}
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.SessionConfig != nil {
		clone.SessionConfig = c.SessionConfig.Clone()
	}
	return &clone
}

// WithAddress sets the server address and returns the config for chaining.
func (c *ServerConfig) WithAddress(addr string) *ServerConfig {
	c.Address = addr
	return c
}

// WithSessionConfig sets the session config and returns the config for chaining.
func (c *ServerConfig) WithSessionConfig(sc *session.Config) *ServerConfig {
	c.SessionConfig = sc
	return c
}

// WithMaxSessions sets the session limit and returns the config for chaining.
func (c *ServerConfig) WithMaxSessions(max int) *ServerConfig {
	c.MaxSessions = max
	return c
}
