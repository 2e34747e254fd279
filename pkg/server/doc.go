// Package server provides the HTTP/WebSocket front end for casta.
//
// A Server owns three things:
//
//   - the shared state cache, whose current value is replayed to every
//     viewer when it connects
//   - a session.Manager holding one session per WebSocket
//   - a chi router exposing the viewer socket and a small JSON API
//
// # Viewers
//
// Viewers connect to /ws. After the upgrade a session is created and
// started: it sends its id as {"payload":"<id>"}, then the cached state if
// there is one, then anything delivered to it later. The heartbeat closes
// viewers that stop answering pings.
//
// # Publishing
//
// PUT /api/state with a JSON body replaces the shared state and delivers it
// to every open session:
//
//	curl -X PUT --data '{"site":"https://example.com"}' localhost:8080/api/state
//
// POST /api/sessions/{id} delivers a body to a single session.
//
// # Shutdown
//
// Run blocks until SIGINT, SIGTERM or context cancellation. Shutdown closes
// every session before stopping the HTTP server, since hijacked WebSocket
// connections are not tracked by net/http.
package server
