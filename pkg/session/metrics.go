package session

import (
	"github.com/casta-dev/casta/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the session metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "casta").
	Namespace string

	// Subsystem is the metrics subsystem (default: "session").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the session metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "casta",
		Subsystem: "session",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Delivery results.
const (
	deliverySent    = "sent"
	deliveryDropped = "dropped"
	deliveryFailed  = "failed"
)

// Metrics holds the Prometheus collectors for sessions. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	activeSessions  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	sessionsClosed  *prometheus.CounterVec
	probesSent      prometheus.Counter
	livenessSignals *prometheus.CounterVec
	echoes          *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	replays         *prometheus.CounterVec
}

// NewMetrics creates and registers the session metrics.
//
// Metrics collected:
//   - casta_session_active: Gauge of open sessions
//   - casta_session_created_total: Counter of sessions started
//   - casta_session_closed_total: Counter of closed sessions by reason
//   - casta_session_probes_sent_total: Counter of heartbeat pings
//   - casta_session_liveness_signals_total: Counter of client pings/pongs by kind
//   - casta_session_echoes_total: Counter of echoed frames by kind
//   - casta_session_deliveries_total: Counter of deliveries by result
//   - casta_session_replays_total: Counter of replay steps by step and result
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active",
			Help:        "Number of open viewer sessions",
			ConstLabels: config.ConstLabels,
		}),

		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "created_total",
			Help:        "Total number of sessions started",
			ConstLabels: config.ConstLabels,
		}),

		sessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "closed_total",
			Help:        "Total number of closed sessions by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		probesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "probes_sent_total",
			Help:        "Total number of heartbeat pings sent to clients",
			ConstLabels: config.ConstLabels,
		}),

		livenessSignals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "liveness_signals_total",
			Help:        "Total pings and pongs received from clients",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		echoes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "echoes_total",
			Help:        "Total data frames echoed back to clients",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "deliveries_total",
			Help:        "Total payload deliveries by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		replays: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "replays_total",
			Help:        "Total state replay steps by step and result",
			ConstLabels: config.ConstLabels,
		}, []string{"step", "result"}),
	}
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
	m.sessionsTotal.Inc()
}

func (m *Metrics) sessionClosed(reason CloseReason, wasStarted bool) {
	if m == nil {
		return
	}
	if wasStarted {
		m.activeSessions.Dec()
	}
	m.sessionsClosed.WithLabelValues(reason.String()).Inc()
}

func (m *Metrics) probeSent() {
	if m == nil {
		return
	}
	m.probesSent.Inc()
}

func (m *Metrics) livenessSignal(kind transport.EventKind) {
	if m == nil {
		return
	}
	m.livenessSignals.WithLabelValues(kindLabel(kind)).Inc()
}

func (m *Metrics) echoed(kind transport.EventKind) {
	if m == nil {
		return
	}
	m.echoes.WithLabelValues(kindLabel(kind)).Inc()
}

func (m *Metrics) delivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) replayed(res ReplayResult) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues("identify", res.identifyResult()).Inc()
	m.replays.WithLabelValues("state", res.stateResult()).Inc()
}

func kindLabel(kind transport.EventKind) string {
	switch kind {
	case transport.EventText:
		return "text"
	case transport.EventBinary:
		return "binary"
	case transport.EventPing:
		return "ping"
	case transport.EventPong:
		return "pong"
	default:
		return "other"
	}
}
