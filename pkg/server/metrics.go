package server

import (
	"time"
)

// ServerMetrics aggregates counters across the server.
type ServerMetrics struct {
	// Sessions
	ActiveSessions int    `json:"activeSessions"`
	TotalSessions  uint64 `json:"totalSessions"`
	SessionCloses  uint64 `json:"sessionCloses"`
	PeakSessions   int    `json:"peakSessions"`

	// Shared state
	StatePresent   bool      `json:"statePresent"`
	StateVersion   uint64    `json:"stateVersion"`
	StateUpdatedAt time.Time `json:"stateUpdatedAt"`

	// Timestamp
	Uptime      string    `json:"uptime"`
	CollectedAt time.Time `json:"collectedAt"`
}

// Metrics collects and returns server metrics.
func (s *Server) Metrics() *ServerMetrics {
	stats := s.manager.Stats()
	snap := s.state.Snapshot()
	now := time.Now()

	return &ServerMetrics{
		ActiveSessions: stats.Active,
		TotalSessions:  stats.TotalCreated,
		SessionCloses:  stats.TotalClosed,
		PeakSessions:   stats.Peak,
		StatePresent:   snap.Present,
		StateVersion:   snap.Version,
		StateUpdatedAt: snap.UpdatedAt,
		Uptime:         now.Sub(s.startedAt).Round(time.Second).String(),
		CollectedAt:    now,
	}
}
