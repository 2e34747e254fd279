package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/casta-dev/casta/internal/errors"
	"github.com/casta-dev/casta/pkg/session"
	"github.com/casta-dev/casta/pkg/transport"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "casta.json"

	// DefaultAddress is the default listen address.
	DefaultAddress = ":8080"

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = "10s"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default log handler.
	DefaultLogFormat = "text"

	// DefaultMetricsPath is where Prometheus metrics are served.
	DefaultMetricsPath = "/metrics"

	// DefaultNamespace is the Prometheus namespace.
	DefaultNamespace = "casta"
)

// Config represents the complete casta.json configuration.
type Config struct {
	// Server contains HTTP listener settings.
	Server ServerConfig `json:"server"`

	// Session contains heartbeat and per-session settings.
	Session SessionConfig `json:"session"`

	// Transport contains WebSocket write and read limits.
	Transport TransportConfig `json:"transport"`

	// Log contains logging settings.
	Log LogConfig `json:"log"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `json:"metrics"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	// Address is the host:port to listen on.
	Address string `json:"address,omitempty"`

	// ReadBufferSize is the WebSocket read buffer size in bytes.
	ReadBufferSize int `json:"readBufferSize,omitempty"`

	// WriteBufferSize is the WebSocket write buffer size in bytes.
	WriteBufferSize int `json:"writeBufferSize,omitempty"`

	// AllowedOrigins lists origins allowed to open a WebSocket. Empty means
	// same-origin only; "*" allows any origin.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`

	// ShutdownTimeout bounds graceful shutdown (e.g., "10s").
	ShutdownTimeout string `json:"shutdownTimeout,omitempty"`

	// MaxSessions limits concurrent viewers. Zero means no limit.
	MaxSessions int `json:"maxSessions,omitempty"`
}

// SessionConfig contains heartbeat settings.
type SessionConfig struct {
	// HeartbeatInterval is the time between heartbeat checks (e.g., "5s").
	HeartbeatInterval string `json:"heartbeatInterval,omitempty"`

	// ClientTimeout is the longest a viewer may stay silent (e.g., "10s").
	ClientTimeout string `json:"clientTimeout,omitempty"`

	// EventQueue is the inbound event buffer per session.
	EventQueue int `json:"eventQueue,omitempty"`
}

// TransportConfig contains WebSocket limits.
type TransportConfig struct {
	// WriteTimeout bounds each frame write (e.g., "10s").
	WriteTimeout string `json:"writeTimeout,omitempty"`

	// MaxMessageSize is the largest inbound message in bytes.
	MaxMessageSize int64 `json:"maxMessageSize,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled turns the metrics endpoint on. Default: true.
	Enabled *bool `json:"enabled,omitempty"`

	// Path is the metrics endpoint path.
	Path string `json:"path,omitempty"`

	// Namespace is the Prometheus namespace.
	Namespace string `json:"namespace,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads configuration from casta.json in dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path and validates
// it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E100").
				WithDetail("No " + filepath.Base(path) + " found in " + filepath.Dir(path))
		}
		return nil, errors.New("E100").Wrap(err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		ce := errors.New("E101").Wrap(err)
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case stderrors.As(err, &syntaxErr):
			ce.WithOffset(path, data, syntaxErr.Offset)
		case stderrors.As(err, &typeErr):
			ce.WithOffset(path, data, typeErr.Offset).
				WithDetail("Field " + typeErr.Field + " must be " + typeErr.Type.String())
		}
		return nil, ce
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Newf(errors.CategoryConfig, "cannot encode config").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Newf(errors.CategoryConfig, "cannot write %s", path).Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	// Server
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.ReadBufferSize == 0 {
		c.Server.ReadBufferSize = 4096
	}
	if c.Server.WriteBufferSize == 0 {
		c.Server.WriteBufferSize = 4096
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Session
	if c.Session.HeartbeatInterval == "" {
		c.Session.HeartbeatInterval = session.DefaultHeartbeatInterval.String()
	}
	if c.Session.ClientTimeout == "" {
		c.Session.ClientTimeout = session.DefaultClientTimeout.String()
	}
	if c.Session.EventQueue == 0 {
		c.Session.EventQueue = session.DefaultEventQueue
	}

	// Transport
	defaults := transport.DefaultOptions()
	if c.Transport.WriteTimeout == "" {
		c.Transport.WriteTimeout = defaults.WriteTimeout.String()
	}
	if c.Transport.MaxMessageSize == 0 {
		c.Transport.MaxMessageSize = defaults.MaxMessageSize
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Metrics
	if c.Metrics.Enabled == nil {
		enabled := true
		c.Metrics.Enabled = &enabled
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, port, err := net.SplitHostPort(c.Server.Address); err != nil || port == "" {
		return errors.New("E104").
			WithDetail(fmt.Sprintf("Address %q is not host:port", c.Server.Address)).
			WithSuggestion(`Use a value such as ":8080" or "127.0.0.1:8080"`)
	}
	if c.Server.ReadBufferSize < 0 || c.Server.WriteBufferSize < 0 || c.Server.MaxSessions < 0 ||
		c.Session.EventQueue < 0 || c.Transport.MaxMessageSize < 0 {
		return errors.New("E107")
	}

	for _, f := range []struct{ name, value string }{
		{"server.shutdownTimeout", c.Server.ShutdownTimeout},
		{"session.heartbeatInterval", c.Session.HeartbeatInterval},
		{"session.clientTimeout", c.Session.ClientTimeout},
		{"transport.writeTimeout", c.Transport.WriteTimeout},
	} {
		d, err := time.ParseDuration(f.value)
		if err != nil || d <= 0 {
			return errors.New("E102").
				WithDetail(fmt.Sprintf("%s = %q is not a positive duration", f.name, f.value))
		}
	}

	if err := c.SessionConfig().Validate(); err != nil {
		return errors.New("E103").Wrap(err)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return errors.New("E105").WithDetail(strconv.Quote(c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return errors.New("E106").WithDetail(strconv.Quote(c.Log.Format))
	}
	return nil
}

// SessionConfig returns the session settings. Durations must have passed
// Validate.
func (c *Config) SessionConfig() *session.Config {
	return &session.Config{
		HeartbeatInterval: mustDuration(c.Session.HeartbeatInterval),
		ClientTimeout:     mustDuration(c.Session.ClientTimeout),
		EventQueue:        c.Session.EventQueue,
	}
}

// TransportOptions returns the WebSocket adapter settings.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		WriteTimeout:   mustDuration(c.Transport.WriteTimeout),
		MaxMessageSize: c.Transport.MaxMessageSize,
	}
}

// ShutdownTimeout returns the graceful shutdown bound.
func (c *Config) ShutdownTimeout() time.Duration {
	return mustDuration(c.Server.ShutdownTimeout)
}

// MetricsEnabled reports whether the metrics endpoint is on.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(name))
	return level, err
}

// mustDuration parses a duration, returning zero for invalid input.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
