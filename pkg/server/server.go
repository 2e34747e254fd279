package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/casta-dev/casta/pkg/cache"
	"github.com/casta-dev/casta/pkg/middleware"
	"github.com/casta-dev/casta/pkg/session"
	"github.com/casta-dev/casta/pkg/transport"
)

// ErrListen is returned by Run when the listen address cannot be bound.
var ErrListen = errors.New("server: cannot listen")

// Server is the HTTP/WebSocket server. It owns the shared state cache, the
// session manager and the router that exposes both.
type Server struct {
	// Session management
	manager *session.Manager

	// Shared state replayed to every new viewer
	state *cache.Cache[json.RawMessage]

	// HTTP routing
	router chi.Router

	// Configuration
	config *ServerConfig

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// Metrics
	registry    *prometheus.Registry
	httpMetrics *middleware.Metrics

	// HTTP server, set by Serve
	mu         sync.Mutex
	httpServer *http.Server

	closing   atomic.Bool
	startedAt time.Time

	// Logger
	logger *slog.Logger
}

// New creates a new Server with the given configuration. A nil config uses
// DefaultServerConfig and a nil logger uses slog.Default().
func New(config *ServerConfig, logger *slog.Logger) *Server {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	sessionConfig := config.SessionConfig.Clone()

	var httpMetrics *middleware.Metrics
	if config.EnableMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		httpMetrics = middleware.NewMetrics(
			middleware.WithRegistry(registry),
			middleware.WithNamespace(config.MetricsNamespace),
		)
		if sessionConfig.Metrics == nil {
			sessionConfig.Metrics = session.NewMetrics(
				session.WithRegistry(registry),
				session.WithNamespace(config.MetricsNamespace),
			)
		}
	}

	state := cache.New[json.RawMessage]()
	manager := session.NewManager(sessionConfig, session.FromCache(state), logger)
	manager.SetMaxSessions(config.MaxSessions)

	s := &Server{
		manager:     manager,
		state:       state,
		config:      config,
		registry:    registry,
		httpMetrics: httpMetrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		startedAt: time.Now(),
		logger:    logger.With("component", "server"),
	}
	s.router = s.routes(logger)
	return s
}

// routes builds the chi router.
//
//   - GET    /ws                  viewer WebSocket
//   - GET    /healthz             liveness
//   - GET    /api/state           current shared state (404 when absent)
//   - PUT    /api/state           replace the state and broadcast it
//   - DELETE /api/state           clear the state
//   - GET    /api/sessions        list sessions
//   - GET    /api/sessions/{id}   one session's counters
//   - POST   /api/sessions/{id}   deliver a payload to one session
//   - DELETE /api/sessions/{id}   disconnect one session
//   - GET    /api/stats           aggregate counters
//   - GET    <MetricsPath>        Prometheus metrics
func (s *Server) routes(logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.OpenTelemetry(middleware.WithRequestFilter(func(r *http.Request) bool {
		return r.URL.Path != s.config.MetricsPath && r.URL.Path != "/healthz"
	})))
	if s.httpMetrics != nil {
		r.Use(s.httpMetrics.Handler)
	}

	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleGetState)
		r.Put("/state", s.handlePutState)
		r.Delete("/state", s.handleDeleteState)

		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/sessions/{id}", s.handleSendSession)
		r.Delete("/sessions/{id}", s.handleCloseSession)

		r.Get("/stats", s.handleStats)
	})

	if s.config.EnableMetrics {
		r.Method(http.MethodGet, s.config.MetricsPath,
			promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}
	return r
}

// Handler returns the server's http.Handler for mounting in another server
// or in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleWebSocket upgrades the request and starts a session on it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.httpMetrics.RecordUpgrade("rejected")
		s.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	conn := transport.NewWebSocketConn(ws, s.config.Transport)
	sess, err := s.manager.Create(conn)
	if err != nil {
		s.httpMetrics.RecordUpgrade("refused")
		s.logger.Warn("session refused", "error", err, "remote_addr", r.RemoteAddr)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	s.httpMetrics.RecordUpgrade("ok")
	sess.Start()
}

// Run listens on the configured address and serves until ctx is done or
// the process receives SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("%w on %s: %w", ErrListen, s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
	s.mu.Lock()
	s.httpServer = hs
	s.mu.Unlock()

	// Set up graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- hs.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-shutdown:
		s.logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("shutting down", "cause", context.Cause(ctx))
	}
	return s.Shutdown(context.Background())
}

// Shutdown closes every session, then stops the HTTP server. It is bounded
// by ShutdownTimeout as well as ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.closing.Store(true)

	// WebSocket connections are hijacked and invisible to http.Server, so
	// sessions are closed first.
	var errs []error
	if err := s.manager.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("sessions: %w", err))
	}

	s.mu.Lock()
	hs := s.httpServer
	s.mu.Unlock()
	if hs != nil {
		if err := hs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}
	s.logger.Info("server shutdown complete")
	return nil
}

// Manager returns the session manager.
func (s *Server) Manager() *session.Manager {
	return s.manager
}

// State returns the shared state cache.
func (s *Server) State() *cache.Cache[json.RawMessage] {
	return s.state
}

// Registry returns the Prometheus registry the server's collectors are
// registered with.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}
