package session

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/casta-dev/casta/pkg/transport/transporttest"
)

const waitTimeout = 2 * time.Second

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeClock is a manually driven Clock. Ticks are delivered synchronously to
// the session loop by Tick.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{interval: d, ch: make(chan time.Time), stopped: make(chan struct{})}
	c.tickers = append(c.tickers, t)
	return t
}

// Set moves the clock to epoch+d.
func (c *fakeClock) Set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = epoch.Add(d)
}

// Tick moves the clock to epoch+d and fires the most recent ticker. It
// reports whether the loop received the tick.
func (c *fakeClock) Tick(t *testing.T, d time.Duration) bool {
	t.Helper()
	c.Set(d)

	c.mu.Lock()
	if len(c.tickers) == 0 {
		c.mu.Unlock()
		t.Fatal("no ticker was created")
	}
	tk := c.tickers[len(c.tickers)-1]
	now := c.now
	c.mu.Unlock()

	select {
	case tk.ch <- now:
		return true
	case <-tk.stopped:
		return false
	case <-time.After(waitTimeout):
		return false
	}
}

func (c *fakeClock) ticker(t *testing.T) *fakeTicker {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) != 1 {
		t.Fatalf("tickers=%d, want 1", len(c.tickers))
	}
	return c.tickers[0]
}

type fakeTicker struct {
	interval time.Duration
	ch       chan time.Time
	stopped  chan struct{}
	once     sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.once.Do(func() { close(t.stopped) })
}

func (t *fakeTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(clock Clock) *Config {
	return DefaultConfig().WithClock(clock)
}

// newTestSession creates an unstarted session on a fake connection and
// fake clock.
func newTestSession(t *testing.T, id uint32, state StateSource) (*Session, *transporttest.Conn, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	conn := transporttest.NewConn()
	s := New(id, conn, state, testConfig(clock), discardLogger())
	t.Cleanup(s.Close)
	return s, conn, clock
}

// waitFor polls cond until it holds or the wait times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func frameTexts(frames []transporttest.Frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Text()
	}
	return out
}
