package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/casta-dev/casta/internal/config"
	"github.com/casta-dev/casta/internal/errors"
	"github.com/casta-dev/casta/pkg/server"
)

type serveOptions struct {
	configPath  string
	addr        string
	heartbeat   string
	timeout     string
	maxSessions int
	logLevel    string
	logFormat   string
	noMetrics   bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the viewer server",
		Long: `Start the HTTP/WebSocket server.

Settings are read from casta.json in the working directory when it
exists, or from --config. Flags override the file.

Examples:
  casta serve
  casta serve --addr=:9000 --log-format=json
  casta serve --config=/etc/casta/casta.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, &opts)
		},
	}

	bindServeFlags(cmd, &opts)

	return cmd
}

func bindServeFlags(cmd *cobra.Command, opts *serveOptions) {
	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Path to casta.json")
	f.StringVarP(&opts.addr, "addr", "a", "", "Listen address (default from casta.json)")
	f.StringVar(&opts.heartbeat, "heartbeat", "", "Heartbeat interval, e.g. 5s")
	f.StringVar(&opts.timeout, "timeout", "", "Client timeout, e.g. 10s")
	f.IntVar(&opts.maxSessions, "max-sessions", 0, "Maximum concurrent viewers (0 = no limit)")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	f.BoolVar(&opts.noMetrics, "no-metrics", false, "Disable the Prometheus endpoint")
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg, opts); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	srv := server.New(serverConfig(cfg), logger)
	logger.Info("casta starting",
		"version", version,
		"address", cfg.Server.Address,
		"heartbeat", cfg.Session.HeartbeatInterval,
		"client_timeout", cfg.Session.ClientTimeout,
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return serveError(srv.Run(ctx), cfg)
}

// loadConfig reads the explicit path, or casta.json in the working
// directory, or falls back to defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if config.Exists(".") {
		return config.Load(".")
	}
	return config.New(), nil
}

// applyFlags copies explicitly set flags over cfg and revalidates it.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts *serveOptions) error {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Server.Address = opts.addr
	}
	if f.Changed("heartbeat") {
		cfg.Session.HeartbeatInterval = opts.heartbeat
	}
	if f.Changed("timeout") {
		cfg.Session.ClientTimeout = opts.timeout
	}
	if f.Changed("max-sessions") {
		if opts.maxSessions < 0 {
			return errors.New("E140").WithDetail(fmt.Sprintf("--max-sessions=%d must not be negative", opts.maxSessions))
		}
		cfg.Server.MaxSessions = opts.maxSessions
	}
	if f.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if f.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if opts.noMetrics {
		enabled := false
		cfg.Metrics.Enabled = &enabled
	}
	return cfg.Validate()
}

// newLogger builds the process logger from the log settings.
func newLogger(lc config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		return nil, errors.New("E105").WithDetail(lc.Level)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(lc.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, errors.New("E106").WithDetail(lc.Format)
	}
	return slog.New(handler), nil
}

// serverConfig maps the file configuration onto the server's.
func serverConfig(cfg *config.Config) *server.ServerConfig {
	sc := server.DefaultServerConfig()
	sc.Address = cfg.Server.Address
	sc.ReadBufferSize = cfg.Server.ReadBufferSize
	sc.WriteBufferSize = cfg.Server.WriteBufferSize
	sc.MaxSessions = cfg.Server.MaxSessions
	sc.ShutdownTimeout = cfg.ShutdownTimeout()
	sc.SessionConfig = cfg.SessionConfig()
	sc.Transport = cfg.TransportOptions()
	sc.EnableMetrics = cfg.MetricsEnabled()
	sc.MetricsPath = cfg.Metrics.Path
	sc.MetricsNamespace = cfg.Metrics.Namespace
	if len(cfg.Server.AllowedOrigins) > 0 {
		sc.CheckOrigin = server.AllowOrigins(cfg.Server.AllowedOrigins)
	}
	return sc
}

// serveError turns server failures into coded errors.
func serveError(err error, cfg *config.Config) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, server.ErrListen):
		return errors.New("E120").WithDetail(cfg.Server.Address).Wrap(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.New("E121").Wrap(err)
	default:
		return err
	}
}
