// Package session implements the per-connection runtime for casta viewers.
//
// A Session owns one transport.Conn. It keeps the connection alive with a
// ping/pong heartbeat, echoes data frames back, replays the shared cached
// state when the viewer joins, and accepts out-of-band payloads from any
// goroutine through Deliver.
//
// # Session Lifecycle
//
// Start runs, in order:
//   - the heartbeat ticker
//   - the state replay (identifying payload, then the cached state if any)
//   - the read goroutine feeding inbound events to the session loop
//
// The session ends on the first of: heartbeat timeout, transport error, the
// peer's close, or Close. Nothing is written after that; deliveries that race
// the shutdown are dropped silently.
//
// # Heartbeat
//
// Every HeartbeatInterval the loop compares the time since the last ping or
// pong from the client with ClientTimeout. Past the timeout the session is
// closed; otherwise an empty ping is sent. Text and binary traffic does not
// count as liveness.
//
// # Thread Safety
//
// One loop goroutine per session serializes inbound events, heartbeat ticks
// and queued deliveries, and is the only writer to the connection. Deliver
// encodes on the caller's goroutine and enqueues the frame on an unbounded
// mailbox, so publishers never block on the network. Deliveries made while
// the replay is still running are held and written after it.
//
// # Example Usage
//
//	state := cache.New[json.RawMessage]()
//	sessions := session.NewManager(session.DefaultConfig(), session.FromCache(state), logger)
//
//	s, err := sessions.Create(transport.NewWebSocketConn(ws, transport.DefaultOptions()))
//	if err != nil {
//	    return err
//	}
//	s.Start()
//
//	sessions.Send(s.ID, map[string]string{"url": "https://example.com"})
package session
