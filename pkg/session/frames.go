package session

import (
	"github.com/casta-dev/casta/pkg/transport"
)

// handleEvent applies one inbound transport event. It runs on the session
// loop only.
func (s *Session) handleEvent(ev transport.Event) {
	if s.IsClosed() {
		return
	}
	s.framesIn.Add(1)

	switch ev.Kind {
	case transport.EventError:
		s.logger.Error("transport error", "error", ev.Err)
		s.shutdown(ReasonTransportError)

	case transport.EventPing:
		s.touch()
		s.metrics.livenessSignal(ev.Kind)
		if err := s.conn.WritePong(ev.Data); err != nil {
			s.fail("pong", err)
		}

	case transport.EventPong:
		s.touch()
		s.metrics.livenessSignal(ev.Kind)

	case transport.EventText:
		// Viewers do not talk back yet; echo keeps the channel observable.
		s.logger.Debug("text frame received", "bytes", len(ev.Data))
		if err := s.conn.WriteText(ev.Text()); err != nil {
			s.fail("echo", err)
			return
		}
		s.framesOut.Add(1)
		s.metrics.echoed(ev.Kind)

	case transport.EventBinary:
		s.logger.Debug("binary frame received", "bytes", len(ev.Data))
		if err := s.conn.WriteBinary(ev.Data); err != nil {
			s.fail("echo", err)
			return
		}
		s.framesOut.Add(1)
		s.metrics.echoed(ev.Kind)

	default:
		// Close is finished by the transport; the read loop reports it.
	}
}

// fail closes the session after a write on op failed. Errors caused by our
// own shutdown are not reported.
func (s *Session) fail(op string, err error) {
	if s.IsClosed() {
		return
	}
	s.logger.Error("write failed", "op", op, "error", err)
	s.shutdown(ReasonTransportError)
}
