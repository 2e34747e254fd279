package session

import (
	"context"
	"log/slog"

	"github.com/casta-dev/casta/pkg/cache"
	"github.com/casta-dev/casta/pkg/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/casta-dev/casta/pkg/session"

// Deliverer accepts payloads for one client.
type Deliverer interface {
	DeliverContext(ctx context.Context, v any) error
}

// StateSource provides the shared state replayed to new sessions.
type StateSource interface {
	// Current returns a point-in-time copy of the state and whether any
	// state is present.
	Current() (any, bool)
}

// StateSourceFunc adapts a function to StateSource.
type StateSourceFunc func() (any, bool)

// Current implements StateSource.
func (f StateSourceFunc) Current() (any, bool) {
	return f()
}

// FromCache adapts a typed cache to StateSource.
func FromCache[T any](c *cache.Cache[T]) StateSource {
	return StateSourceFunc(func() (any, bool) {
		v, ok := c.Load()
		return v, ok
	})
}

// ReplayResult reports what Replay handed to the Deliverer.
type ReplayResult struct {
	// Identified is true when the identifying payload was accepted.
	Identified bool

	// HadState is true when the source held state at replay time.
	HadState bool

	// StateSent is true when the state payload was accepted.
	StateSent bool
}

func (r ReplayResult) identifyResult() string {
	if r.Identified {
		return deliverySent
	}
	return deliveryFailed
}

func (r ReplayResult) stateResult() string {
	switch {
	case !r.HadState:
		return "absent"
	case r.StateSent:
		return deliverySent
	default:
		return deliveryFailed
	}
}

// Replay brings a new client up to date: it delivers the session id as a
// decimal string, then the current state from src if there is any. The
// source is read after the identifying delivery and no lock is held while
// delivering. A failed delivery is logged and does not stop the other step.
func Replay(ctx context.Context, d Deliverer, id uint32, src StateSource, logger *slog.Logger) ReplayResult {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "session.replay",
		trace.WithAttributes(attribute.Int64("session.id", int64(id))))
	defer span.End()

	var res ReplayResult

	if err := d.DeliverContext(ctx, protocol.Identify(id)); err != nil {
		logger.Error("identifying payload dropped", "error", err)
		span.RecordError(err)
	} else {
		res.Identified = true
	}

	if src == nil {
		span.SetAttributes(attribute.Bool("replay.state_present", false))
		return res
	}

	state, ok := src.Current()
	span.SetAttributes(attribute.Bool("replay.state_present", ok))
	if !ok {
		logger.Debug("no cached state to replay")
		return res
	}
	res.HadState = true

	if err := d.DeliverContext(ctx, state); err != nil {
		logger.Error("cached state dropped", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "cached state not delivered")
		return res
	}
	res.StateSent = true
	return res
}
