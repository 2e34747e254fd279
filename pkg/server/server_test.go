package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const waitTimeout = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, mutate func(*ServerConfig)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := DefaultServerConfig()
	if mutate != nil {
		mutate(cfg)
	}
	s := New(cfg, discardLogger())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = s.Shutdown(ctx)
		ts.Close()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func readText(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(waitTimeout))
	typ, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if typ != websocket.TextMessage {
		t.Fatalf("message type=%d, want text", typ)
	}
	return string(data)
}

// identify reads the identifying message and returns the session id.
func identify(t *testing.T, c *websocket.Conn) uint32 {
	t.Helper()
	msg := readText(t, c)
	var env struct {
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal([]byte(msg), &env); err != nil {
		t.Fatalf("identify message %q: %v", msg, err)
	}
	var id uint32
	if _, err := fmt.Sscan(env.Payload, &id); err != nil || id == 0 {
		t.Fatalf("identify payload %q is not a session id", env.Payload)
	}
	return id
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// =============================================================================
// Viewer WebSocket
// =============================================================================

func TestServer_WebSocket_IdentifiesSession(t *testing.T) {
	s, ts := newTestServer(t, nil)
	c := dial(t, ts)

	id := identify(t, c)
	if s.Manager().Get(id) == nil {
		t.Fatalf("session %d not registered", id)
	}
}

func TestServer_WebSocket_ReplaysState(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp := do(t, ts, http.MethodPut, "/api/state", `{"site":"https://a.example"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status=%d, want 200", resp.StatusCode)
	}

	c := dial(t, ts)
	identify(t, c)
	if got, want := readText(t, c), `{"payload":{"site":"https://a.example"}}`; got != want {
		t.Fatalf("replayed=%q, want %q", got, want)
	}
}

func TestServer_WebSocket_Echo(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := dial(t, ts)
	identify(t, c)

	if err := c.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if got := readText(t, c); got != "hello" {
		t.Fatalf("echo=%q, want %q", got, "hello")
	}

	if err := c.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	c.SetReadDeadline(time.Now().Add(waitTimeout))
	typ, data, err := c.ReadMessage()
	if err != nil || typ != websocket.BinaryMessage || string(data) != "\x01\x02\x03" {
		t.Fatalf("binary echo=(%d, %v, %v), want binary 010203", typ, data, err)
	}
}

func TestServer_WebSocket_MaxSessions(t *testing.T) {
	_, ts := newTestServer(t, func(c *ServerConfig) { c.MaxSessions = 1 })

	first := dial(t, ts)
	identify(t, first)

	second := dial(t, ts)
	second.SetReadDeadline(time.Now().Add(waitTimeout))
	_, _, err := second.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Fatalf("second viewer error=%v, want close 1013", err)
	}
}

func TestServer_WebSocket_RejectsCrossOrigin(t *testing.T) {
	_, ts := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("Dial with foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("response=%v, want 403", resp)
	}
}

// =============================================================================
// State API
// =============================================================================

func TestServer_PutState_Broadcasts(t *testing.T) {
	_, ts := newTestServer(t, nil)
	a := dial(t, ts)
	b := dial(t, ts)
	identify(t, a)
	identify(t, b)

	resp := do(t, ts, http.MethodPut, "/api/state", `[1,2,3]`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status=%d, want 200", resp.StatusCode)
	}
	var result publishResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Delivered != 2 || result.Version != 1 {
		t.Fatalf("result=%+v, want 2 delivered at version 1", result)
	}

	for _, c := range []*websocket.Conn{a, b} {
		if got, want := readText(t, c), `{"payload":[1,2,3]}`; got != want {
			t.Fatalf("broadcast=%q, want %q", got, want)
		}
	}
}

func TestServer_State_GetAndDelete(t *testing.T) {
	_, ts := newTestServer(t, nil)

	if resp := do(t, ts, http.MethodGet, "/api/state", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET empty status=%d, want 404", resp.StatusCode)
	}

	do(t, ts, http.MethodPut, "/api/state", `{"n":1}`)
	resp := do(t, ts, http.MethodGet, "/api/state", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status=%d, want 200", resp.StatusCode)
	}
	if got := readBody(t, resp); got != `{"n":1}` {
		t.Fatalf("GET body=%q", got)
	}
	if got := resp.Header.Get("X-State-Version"); got != "1" {
		t.Fatalf("X-State-Version=%q, want 1", got)
	}

	if resp := do(t, ts, http.MethodDelete, "/api/state", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status=%d, want 204", resp.StatusCode)
	}
	if resp := do(t, ts, http.MethodGet, "/api/state", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after DELETE status=%d, want 404", resp.StatusCode)
	}
}

func TestServer_PutState_RejectsBadBodies(t *testing.T) {
	s, ts := newTestServer(t, func(c *ServerConfig) { c.Transport.MaxMessageSize = 16 })

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{"site":`, http.StatusBadRequest},
		{"empty", ``, http.StatusBadRequest},
		{"too large", `"` + strings.Repeat("x", 64) + `"`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, ts, http.MethodPut, "/api/state", tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status=%d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
	if _, ok := s.State().Load(); ok {
		t.Fatal("rejected body was stored")
	}
}

// =============================================================================
// Session API
// =============================================================================

func TestServer_SendSession(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := dial(t, ts)
	id := identify(t, c)

	resp := do(t, ts, http.MethodPost, fmt.Sprintf("/api/sessions/%d", id), `"hi"`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status=%d, want 202", resp.StatusCode)
	}
	if got, want := readText(t, c), `{"payload":"hi"}`; got != want {
		t.Fatalf("delivered=%q, want %q", got, want)
	}
}

func TestServer_SendSession_Errors(t *testing.T) {
	_, ts := newTestServer(t, nil)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown id", "/api/sessions/99", `1`, http.StatusNotFound},
		{"bad id", "/api/sessions/abc", `1`, http.StatusBadRequest},
		{"id overflow", "/api/sessions/4294967296", `1`, http.StatusBadRequest},
		{"bad body", "/api/sessions/99", `nope`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, ts, http.MethodPost, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status=%d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestServer_ListGetCloseSession(t *testing.T) {
	s, ts := newTestServer(t, nil)
	c := dial(t, ts)
	id := identify(t, c)

	var list []sessionInfo
	if err := json.NewDecoder(do(t, ts, http.MethodGet, "/api/sessions", "").Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("sessions=%+v, want [%d]", list, id)
	}

	path := fmt.Sprintf("/api/sessions/%d", id)
	var info sessionInfo
	if err := json.NewDecoder(do(t, ts, http.MethodGet, path, "").Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.ID != id || info.CreatedAt.IsZero() {
		t.Fatalf("info=%+v, want id %d", info, id)
	}

	if resp := do(t, ts, http.MethodDelete, path, ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status=%d, want 204", resp.StatusCode)
	}
	c.SetReadDeadline(time.Now().Add(waitTimeout))
	if _, _, err := c.ReadMessage(); err == nil {
		t.Fatal("ReadMessage after DELETE succeeded, want closed connection")
	}
	waitFor(t, "session removal", func() bool { return s.Manager().Count() == 0 })

	if resp := do(t, ts, http.MethodDelete, path, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second DELETE status=%d, want 404", resp.StatusCode)
	}
}

func TestServer_Stats(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := dial(t, ts)
	identify(t, c)
	do(t, ts, http.MethodPut, "/api/state", `true`)

	var m ServerMetrics
	if err := json.NewDecoder(do(t, ts, http.MethodGet, "/api/stats", "").Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m.ActiveSessions != 1 || m.TotalSessions != 1 || m.PeakSessions != 1 {
		t.Fatalf("stats=%+v, want one session", m)
	}
	if !m.StatePresent || m.StateVersion != 1 {
		t.Fatalf("stats=%+v, want state at version 1", m)
	}
}

// =============================================================================
// Operations
// =============================================================================

func TestServer_Healthz(t *testing.T) {
	s, ts := newTestServer(t, nil)

	resp := do(t, ts, http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusOK || readBody(t, resp) != "ok\n" {
		t.Fatalf("healthz status=%d, want 200 ok", resp.StatusCode)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if resp := do(t, ts, http.MethodGet, "/healthz", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("healthz after Shutdown status=%d, want 503", resp.StatusCode)
	}
}

func TestServer_Metrics(t *testing.T) {
	_, ts := newTestServer(t, nil)
	c := dial(t, ts)
	identify(t, c)

	body := readBody(t, do(t, ts, http.MethodGet, "/metrics", ""))
	for _, want := range []string{
		"casta_session_active 1",
		`casta_http_websocket_upgrades_total{result="ok"} 1`,
		"casta_session_created_total 1",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}

func TestServer_MetricsDisabled(t *testing.T) {
	_, ts := newTestServer(t, func(c *ServerConfig) { c.EnableMetrics = false })
	c := dial(t, ts)
	identify(t, c)

	if resp := do(t, ts, http.MethodGet, "/metrics", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("/metrics status=%d, want 404", resp.StatusCode)
	}
}

func TestServer_Shutdown_ClosesSessions(t *testing.T) {
	s, ts := newTestServer(t, nil)
	c := dial(t, ts)
	identify(t, c)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	c.SetReadDeadline(time.Now().Add(waitTimeout))
	if _, _, err := c.ReadMessage(); err == nil {
		t.Fatal("ReadMessage after Shutdown succeeded")
	}
	if n := s.Manager().Count(); n != 0 {
		t.Fatalf("Count()=%d after Shutdown, want 0", n)
	}
}

func TestServer_Serve_StopsOnContextCancel(t *testing.T) {
	s := New(DefaultServerConfig(), discardLogger())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	waitFor(t, "server to accept", func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve()=%v, want nil", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServer_Run_ListenError(t *testing.T) {
	s := New(DefaultServerConfig().WithAddress("127.0.0.1:-1"), discardLogger())

	err := s.Run(context.Background())
	if !errors.Is(err, ErrListen) {
		t.Fatalf("Run()=%v, want ErrListen", err)
	}
}
