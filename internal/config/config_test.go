package config

import (
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/casta-dev/casta/internal/errors"
	"github.com/casta-dev/casta/pkg/session"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func errorCode(err error) string {
	var ce *errors.CastaError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Address != DefaultAddress {
		t.Errorf("Server.Address = %q, want %q", cfg.Server.Address, DefaultAddress)
	}
	if cfg.Session.HeartbeatInterval != "5s" {
		t.Errorf("Session.HeartbeatInterval = %q, want %q", cfg.Session.HeartbeatInterval, "5s")
	}
	if cfg.Session.ClientTimeout != "10s" {
		t.Errorf("Session.ClientTimeout = %q, want %q", cfg.Session.ClientTimeout, "10s")
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if !cfg.MetricsEnabled() {
		t.Error("MetricsEnabled() = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoad(t *testing.T) {
	// Missing config
	_, err := Load(t.TempDir())
	if code := errorCode(err); code != "E100" {
		t.Fatalf("Load(empty dir) error = %v, want E100", err)
	}

	dir := writeConfig(t, `{
  "server": {
    "address": "127.0.0.1:9000",
    "allowedOrigins": ["https://display.example.com"],
    "maxSessions": 50
  },
  "session": {
    "heartbeatInterval": "2s",
    "clientTimeout": "6s"
  },
  "log": {"level": "debug", "format": "json"},
  "metrics": {"enabled": false}
}
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Address != "127.0.0.1:9000" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.MaxSessions != 50 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.MetricsEnabled() {
		t.Error("MetricsEnabled() = true, want false")
	}
	// Unset fields get defaults.
	if cfg.Server.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("Server.ShutdownTimeout = %q, want default", cfg.Server.ShutdownTimeout)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default", cfg.Metrics.Path)
	}

	sc := cfg.SessionConfig()
	if sc.HeartbeatInterval != 2*time.Second || sc.ClientTimeout != 6*time.Second {
		t.Errorf("SessionConfig() = %+v", sc)
	}
	if sc.EventQueue != session.DefaultEventQueue {
		t.Errorf("SessionConfig().EventQueue = %d", sc.EventQueue)
	}
	if cfg.Path() != filepath.Join(dir, ConfigFileName) || cfg.Dir() != dir {
		t.Errorf("Path() = %q, Dir() = %q", cfg.Path(), cfg.Dir())
	}
}

func TestLoadFile_InvalidJSON(t *testing.T) {
	dir := writeConfig(t, "{\n  \"server\": {\n    \"address\": ,\n  }\n}\n")

	_, err := Load(dir)
	var ce *errors.CastaError
	if !stderrors.As(err, &ce) || ce.Code != "E101" {
		t.Fatalf("Load() error = %v, want E101", err)
	}
	if ce.Location == nil || ce.Location.Line != 3 {
		t.Fatalf("Location = %+v, want line 3", ce.Location)
	}
}

func TestLoadFile_WrongType(t *testing.T) {
	dir := writeConfig(t, `{"session": {"eventQueue": "lots"}}`)

	_, err := Load(dir)
	var ce *errors.CastaError
	if !stderrors.As(err, &ce) || ce.Code != "E101" {
		t.Fatalf("Load() error = %v, want E101", err)
	}
	if !strings.Contains(ce.Detail, "eventQueue") {
		t.Fatalf("Detail = %q, want field name", ce.Detail)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"address without port", func(c *Config) { c.Server.Address = "localhost" }, "E104"},
		{"negative buffer", func(c *Config) { c.Server.ReadBufferSize = -1 }, "E107"},
		{"bad duration", func(c *Config) { c.Session.HeartbeatInterval = "soon" }, "E102"},
		{"zero duration", func(c *Config) { c.Transport.WriteTimeout = "0s" }, "E102"},
		{"timeout too short", func(c *Config) { c.Session.ClientTimeout = "6s" }, "E103"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "E105"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "E106"},
		{"upper-case format", func(c *Config) { c.Log.Format = "JSON" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if got := errorCode(err); got != tt.code {
				t.Fatalf("Validate() = %v, want code %q", err, tt.code)
			}
		})
	}
}

func TestValidate_HeartbeatWrapsSessionError(t *testing.T) {
	cfg := New()
	cfg.Session.ClientTimeout = "1s"

	err := cfg.Validate()
	if !stderrors.Is(err, session.ErrInvalidConfig) {
		t.Fatalf("Validate() = %v, want wrapping session.ErrInvalidConfig", err)
	}
}

func TestSaveTo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)

	cfg := New()
	cfg.Server.Address = ":9999"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo error: %v", err)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if loaded.Server.Address != ":9999" {
		t.Errorf("Server.Address = %q, want %q", loaded.Server.Address, ":9999")
	}

	loaded.Log.Level = "warn"
	if err := loaded.Save(); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := New().Save(); err == nil {
		t.Error("Save() without path error = nil")
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	if Exists(dir) {
		t.Error("Exists() = true for empty dir")
	}
	if err := New().SaveTo(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Fatal(err)
	}
	if !Exists(dir) {
		t.Error("Exists() = false after SaveTo")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v, want %v", name, got, err, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel(verbose) error = nil")
	}
}

func TestDurations(t *testing.T) {
	cfg := New()
	if got := cfg.ShutdownTimeout(); got != 10*time.Second {
		t.Errorf("ShutdownTimeout() = %v, want 10s", got)
	}
	opts := cfg.TransportOptions()
	if opts.WriteTimeout != 10*time.Second || opts.MaxMessageSize != 64*1024 {
		t.Errorf("TransportOptions() = %+v", opts)
	}
}
