package session

import (
	"sync"

	"github.com/eapache/queue"
)

// mailbox is an unbounded FIFO of encoded frames waiting for the session
// loop. Push never blocks; Ready fires at least once after any Push.
//
// Frames have two lanes. Replay frames are always drained first. Regular
// frames are held until Release so that nothing overtakes the replay.
type mailbox struct {
	mu       sync.Mutex
	replay   *queue.Queue
	regular  *queue.Queue
	released bool
	ready    chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		replay:  queue.New(),
		regular: queue.New(),
		ready:   make(chan struct{}, 1),
	}
}

// Push appends a regular frame.
func (m *mailbox) Push(frame string) {
	m.mu.Lock()
	m.regular.Add(frame)
	m.mu.Unlock()
	m.signal()
}

// PushReplay appends a replay frame.
func (m *mailbox) PushReplay(frame string) {
	m.mu.Lock()
	m.replay.Add(frame)
	m.mu.Unlock()
	m.signal()
}

// Release lets regular frames through.
func (m *mailbox) Release() {
	m.mu.Lock()
	m.released = true
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Ready returns the channel signalled after pushes.
func (m *mailbox) Ready() <-chan struct{} {
	return m.ready
}

// Drain removes and returns every deliverable frame in order.
func (m *mailbox) Drain() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.replay.Length()
	if m.released {
		n += m.regular.Length()
	}
	if n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for m.replay.Length() > 0 {
		out = append(out, m.replay.Remove().(string))
	}
	if m.released {
		for m.regular.Length() > 0 {
			out = append(out, m.regular.Remove().(string))
		}
	}
	return out
}

// Len returns the number of queued frames.
func (m *mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replay.Length() + m.regular.Length()
}
