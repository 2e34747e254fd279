package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casta-dev/casta/pkg/protocol"
	"github.com/casta-dev/casta/pkg/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Session represents a single viewer connection.
type Session struct {
	// Identity
	ID        uint32
	CreatedAt time.Time

	// Connection
	conn  transport.Conn
	state StateSource

	// Heartbeat state, owned by the loop goroutine.
	hb        heartbeat
	lastAlive atomic.Int64 // UnixNano mirror of hb.lastAlive for readers

	// Channels
	inbound  chan transport.Event
	mailbox  *mailbox
	done     chan struct{} // closed on shutdown
	loopDone chan struct{} // closed when the loop goroutine has exited

	// Lifecycle
	started   atomic.Bool
	replayed  atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	reason    atomic.Value // CloseReason
	onClose   func(*Session)

	// Configuration
	config  *Config
	clock   Clock
	metrics *Metrics
	tracer  trace.Tracer

	// Logger
	logger *slog.Logger

	// Stats
	framesIn   atomic.Uint64
	framesOut  atomic.Uint64
	probesSent atomic.Uint64
}

// New creates a session for conn. The session does nothing until Start.
// state may be nil, in which case replay only sends the identifying payload.
func New(id uint32, conn transport.Conn, state StateSource, config *Config, logger *slog.Logger) *Session {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	now := config.Clock.Now()
	s := &Session{
		ID:        id,
		CreatedAt: now,
		conn:      conn,
		state:     state,
		hb:        newHeartbeat(config.ClientTimeout, now),
		inbound:   make(chan transport.Event, config.EventQueue),
		mailbox:   newMailbox(),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		config:    config,
		clock:     config.Clock,
		metrics:   config.Metrics,
		tracer:    otel.Tracer(instrumentationName),
		logger:    logger.With("session_id", id),
	}
	s.lastAlive.Store(now.UnixNano())
	s.reason.Store(ReasonNone)
	return s
}

// Start begins the heartbeat, launches the state replay and starts reading
// inbound events. Calling Start more than once, or on a closed session, has
// no effect.
func (s *Session) Start() {
	if s.closed.Load() || !s.started.CompareAndSwap(false, true) {
		return
	}

	s.logger.Info("client connected", "remote_addr", s.conn.RemoteAddr())
	s.metrics.sessionStarted()

	ticker := s.clock.NewTicker(s.config.HeartbeatInterval)
	go s.replay()
	go s.readLoop()
	go s.loop(ticker)
}

// loop is the session's single execution context. Every write to the
// connection happens here.
func (s *Session) loop(ticker Ticker) {
	defer close(s.loopDone)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case <-ticker.C():
			s.tick()

		case ev := <-s.inbound:
			s.handleEvent(ev)

		case <-s.mailbox.Ready():
			s.flush()
		}
	}
}

// readLoop feeds inbound events to the loop until the transport ends.
func (s *Session) readLoop() {
	for {
		ev, err := s.conn.ReadEvent()
		if err != nil {
			if s.IsClosed() {
				return
			}
			if errors.Is(err, transport.ErrClosed) {
				s.shutdown(ReasonPeerClosed)
				return
			}
			ev = transport.ErrorEvent(err)
		}

		select {
		case s.inbound <- ev:
		case <-s.done:
			return
		}

		if ev.Kind == transport.EventError {
			return
		}
	}
}

// replay runs the state replay once per session, then lets regular
// deliveries through.
func (s *Session) replay() {
	if !s.replayed.CompareAndSwap(false, true) {
		return
	}
	defer s.mailbox.Release()

	res := Replay(context.Background(), replayLane{s}, s.ID, s.state, s.logger)
	s.metrics.replayed(res)
}

// replayLane delivers on the mailbox's replay lane.
type replayLane struct{ s *Session }

func (r replayLane) DeliverContext(ctx context.Context, v any) error {
	return r.s.deliver(ctx, v, r.s.mailbox.PushReplay)
}

// flush writes queued deliveries in order.
func (s *Session) flush() {
	for _, frame := range s.mailbox.Drain() {
		if s.IsClosed() {
			return
		}
		if err := s.conn.WriteText(frame); err != nil {
			s.fail("deliver", err)
			return
		}
		s.framesOut.Add(1)
		s.metrics.delivery(deliverySent)
	}
}

// Deliver sends v to the client as a single {"payload": v} text frame.
// See DeliverContext.
func (s *Session) Deliver(v any) error {
	return s.DeliverContext(context.Background(), v)
}

// DeliverContext encodes v on the calling goroutine and queues the frame
// for the session loop. It is safe to call from any goroutine. Frames are
// written in call order, after the replay frames of a starting session.
//
// A value that cannot be encoded is dropped and reported with an error
// wrapping ErrSerialization; the session stays open. Delivering to a closed
// session is a no-op and returns nil.
func (s *Session) DeliverContext(ctx context.Context, v any) error {
	return s.deliver(ctx, v, s.mailbox.Push)
}

func (s *Session) deliver(ctx context.Context, v any, push func(string)) error {
	_, span := s.tracer.Start(ctx, "session.deliver",
		trace.WithAttributes(attribute.Int64("session.id", int64(s.ID))))
	defer span.End()

	if s.IsClosed() {
		span.AddEvent("session closed")
		s.metrics.delivery(deliveryDropped)
		s.logger.Debug("delivery to closed session dropped")
		return nil
	}

	frame, err := protocol.Encode(v)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "serialization failed")
		s.metrics.delivery(deliveryFailed)
		s.logger.Error("cannot serialize payload", "type", fmt.Sprintf("%T", v), "error", err)
		return NewSessionError(s.ID, "deliver", fmt.Errorf("%w: %w", ErrSerialization, err))
	}

	span.SetAttributes(attribute.Int("payload.bytes", len(frame)))
	push(string(frame))
	return nil
}

// Close ends the session. It is safe to call more than once and from any
// goroutine.
func (s *Session) Close() {
	s.shutdown(ReasonClosed)
}

// shutdown closes the session exactly once with the given reason.
func (s *Session) shutdown(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.reason.Store(reason)
		s.closed.Store(true)
		close(s.done)

		// A session that never started has no loop to wait for.
		wasStarted := !s.started.CompareAndSwap(false, true)
		if !wasStarted {
			close(s.loopDone)
		}

		if err := s.conn.Close(); err != nil {
			s.logger.Debug("close error", "error", err)
		}

		s.metrics.sessionClosed(reason, wasStarted)
		s.logger.Info("client disconnected",
			"reason", reason.String(),
			"frames_in", s.framesIn.Load(),
			"frames_out", s.framesOut.Load(),
			"probes", s.probesSent.Load())

		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// IsClosed returns whether the session is closed.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done returns a channel that's closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session loop has exited or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseReason returns why the session ended, or ReasonNone while open.
func (s *Session) CloseReason() CloseReason {
	return s.reason.Load().(CloseReason)
}

// LastAlive returns the time of the last liveness signal from the client,
// or the creation time if there was none.
func (s *Session) LastAlive() time.Time {
	return time.Unix(0, s.lastAlive.Load())
}

// RemoteAddr returns the client's network address.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr()
}

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Stats is a snapshot of session counters.
type Stats struct {
	ID         uint32
	CreatedAt  time.Time
	LastAlive  time.Time
	FramesIn   uint64
	FramesOut  uint64
	ProbesSent uint64
	Queued     int
	Closed     bool
	Reason     CloseReason
}

// Stats returns session statistics.
func (s *Session) Stats() Stats {
	return Stats{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		LastAlive:  s.LastAlive(),
		FramesIn:   s.framesIn.Load(),
		FramesOut:  s.framesOut.Load(),
		ProbesSent: s.probesSent.Load(),
		Queued:     s.mailbox.Len(),
		Closed:     s.IsClosed(),
		Reason:     s.CloseReason(),
	}
}
