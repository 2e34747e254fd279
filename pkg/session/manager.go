package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/casta-dev/casta/pkg/transport"
	"github.com/google/uuid"
)

// ErrMaxSessionsReached is returned by Manager.Create when the session limit
// is reached.
var ErrMaxSessionsReached = errors.New("session: max sessions reached")

// maxIDAttempts bounds id generation retries on collision.
const maxIDAttempts = 8

// Manager tracks every open session and routes payloads to them.
type Manager struct {
	// Sessions map protected by RWMutex
	sessions map[uint32]*Session
	mu       sync.RWMutex
	closing  bool // protected by mu

	// Configuration
	config      *Config
	state       StateSource
	maxSessions int
	newID       func() uint32

	// Metrics
	totalCreated atomic.Uint64
	totalClosed  atomic.Uint64
	peakSessions int // protected by mu

	// Callbacks
	onSessionCreate func(*Session)
	onSessionClose  func(*Session)

	logger *slog.Logger
}

// NewManager creates a Manager. Every session it creates shares config and
// replays state on start. state may be nil.
func NewManager(config *Config, state StateSource, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[uint32]*Session),
		config:   config.withDefaults(),
		state:    state,
		newID:    func() uint32 { return uuid.New().ID() },
		logger:   logger.With("component", "session_manager"),
	}
}

// SetMaxSessions limits the number of open sessions. Zero means no limit.
func (m *Manager) SetMaxSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxSessions = n
}

// SetIDGenerator replaces the session id source.
func (m *Manager) SetIDGenerator(fn func() uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newID = fn
}

// SetOnSessionCreate sets the callback for session creation.
func (m *Manager) SetOnSessionCreate(fn func(*Session)) {
	m.onSessionCreate = fn
}

// SetOnSessionClose sets the callback for session close.
func (m *Manager) SetOnSessionClose(fn func(*Session)) {
	m.onSessionClose = fn
}

// Create registers a new session for conn. The caller starts it.
func (m *Manager) Create(conn transport.Conn) (*Session, error) {
	m.mu.Lock()

	if m.closing {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, ErrMaxSessionsReached
	}

	id, ok := m.allocateIDLocked()
	if !ok {
		m.mu.Unlock()
		return nil, errors.New("session: cannot allocate session id")
	}

	s := New(id, conn, m.state, m.config, m.logger)
	s.onClose = m.remove
	m.sessions[id] = s
	if len(m.sessions) > m.peakSessions {
		m.peakSessions = len(m.sessions)
	}
	active := len(m.sessions)
	m.mu.Unlock()

	m.totalCreated.Add(1)
	m.logger.Debug("session created", "session_id", id, "active_sessions", active)

	if m.onSessionCreate != nil {
		m.onSessionCreate(s)
	}
	return s, nil
}

func (m *Manager) allocateIDLocked() (uint32, bool) {
	for i := 0; i < maxIDAttempts; i++ {
		id := m.newID()
		if id == 0 {
			continue
		}
		if _, taken := m.sessions[id]; !taken {
			return id, true
		}
	}
	return 0, false
}

// remove is the session close hook.
func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.ID]; ok && cur == s {
		delete(m.sessions, s.ID)
	}
	m.mu.Unlock()

	m.totalClosed.Add(1)
	if m.onSessionClose != nil {
		m.onSessionClose(s)
	}
}

// Get returns a session by id, or nil.
func (m *Manager) Get(id uint32) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Send delivers v to one session.
func (m *Manager) Send(id uint32, v any) error {
	return m.SendContext(context.Background(), id, v)
}

// SendContext delivers v to one session.
func (m *Manager) SendContext(ctx context.Context, id uint32, v any) error {
	s := m.Get(id)
	if s == nil {
		return NewSessionError(id, "send", ErrSessionNotFound)
	}
	return s.DeliverContext(ctx, v)
}

// Broadcast delivers v to every open session and returns how many accepted
// it. Serialization errors abort on the first session since every session
// would fail the same way.
func (m *Manager) Broadcast(v any) (int, error) {
	return m.BroadcastContext(context.Background(), v)
}

// BroadcastContext is Broadcast with a context for tracing.
func (m *Manager) BroadcastContext(ctx context.Context, v any) (int, error) {
	n := 0
	for _, s := range m.snapshot() {
		if s.IsClosed() {
			continue
		}
		if err := s.DeliverContext(ctx, v); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Close closes one session. Unknown ids are ignored.
func (m *Manager) Close(id uint32) {
	if s := m.Get(id); s != nil {
		s.Close()
	}
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the ids of open sessions in ascending order.
func (m *Manager) IDs() []uint32 {
	m.mu.RLock()
	ids := make([]uint32, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ForEach iterates over a snapshot of the open sessions until fn returns
// false.
func (m *Manager) ForEach(fn func(*Session) bool) {
	for _, s := range m.snapshot() {
		if !fn(s) {
			return
		}
	}
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// ManagerStats contains aggregated session manager statistics.
type ManagerStats struct {
	Active       int
	TotalCreated uint64
	TotalClosed  uint64
	Peak         int
}

// Stats returns manager statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	active := len(m.sessions)
	peak := m.peakSessions
	m.mu.RUnlock()

	return ManagerStats{
		Active:       active,
		TotalCreated: m.totalCreated.Load(),
		TotalClosed:  m.totalClosed.Load(),
		Peak:         peak,
	}
}

// Shutdown closes every session and waits for their loops to exit or for
// ctx to be done. Create fails with ErrShuttingDown afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	sessions := m.snapshot()
	m.logger.Info("shutting down sessions", "count", len(sessions))

	for _, s := range sessions {
		s.shutdown(ReasonShutdown)
	}
	for _, s := range sessions {
		if err := s.Wait(ctx); err != nil {
			m.logger.Warn("session shutdown timed out", "session_id", s.ID, "error", err)
			return err
		}
	}
	return nil
}
