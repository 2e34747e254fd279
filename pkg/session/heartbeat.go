package session

import "time"

// heartbeat tracks when the client last proved it was alive. It is owned by
// the session loop and never touched concurrently.
type heartbeat struct {
	timeout   time.Duration
	lastAlive time.Time
}

func newHeartbeat(timeout time.Duration, now time.Time) heartbeat {
	return heartbeat{timeout: timeout, lastAlive: now}
}

// touch records a liveness signal. Readings older than the current value are
// ignored so lastAlive never moves backwards.
func (h *heartbeat) touch(now time.Time) bool {
	if now.Before(h.lastAlive) {
		return false
	}
	h.lastAlive = now
	return true
}

// expired reports whether the client has been silent for longer than the
// timeout. Silence of exactly the timeout is still alive.
func (h *heartbeat) expired(now time.Time) bool {
	return now.Sub(h.lastAlive) > h.timeout
}

// tick runs one heartbeat check on the session loop: close a silent client,
// otherwise probe it with an empty ping.
func (s *Session) tick() {
	if s.IsClosed() {
		return
	}

	now := s.clock.Now()
	if s.hb.expired(now) {
		s.logger.Info("client heartbeat timeout reached, disconnecting",
			"silent_for", now.Sub(s.hb.lastAlive),
			"timeout", s.config.ClientTimeout)
		s.shutdown(ReasonTimeout)
		return
	}

	if err := s.conn.WritePing(nil); err != nil {
		s.fail("ping", err)
		return
	}
	s.probesSent.Add(1)
	s.metrics.probeSent()
}

// touch marks the client alive now.
func (s *Session) touch() {
	if s.hb.touch(s.clock.Now()) {
		s.lastAlive.Store(s.hb.lastAlive.UnixNano())
	}
}
