package session

import (
	"reflect"
	"sync"
	"testing"
)

func TestMailbox_HoldsRegularUntilRelease(t *testing.T) {
	m := newMailbox()
	m.Push("a")
	m.PushReplay("id")

	if got := m.Drain(); !reflect.DeepEqual(got, []string{"id"}) {
		t.Fatalf("Drain() before release=%v, want [id]", got)
	}
	if got := m.Len(); got != 1 {
		t.Fatalf("Len()=%d, want 1", got)
	}

	m.PushReplay("state")
	m.Push("b")
	m.Release()

	want := []string{"state", "a", "b"}
	if got := m.Drain(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Drain()=%v, want %v", got, want)
	}
	if got := m.Drain(); got != nil {
		t.Fatalf("Drain() on empty=%v, want nil", got)
	}
}

func TestMailbox_ReadySignalsOnce(t *testing.T) {
	m := newMailbox()
	m.Push("a")
	m.Push("b")

	select {
	case <-m.Ready():
	default:
		t.Fatal("Ready() not signalled after Push")
	}
	select {
	case <-m.Ready():
		t.Fatal("Ready() signalled twice")
	default:
	}
}

func TestMailbox_ConcurrentPushKeepsPerWriterOrder(t *testing.T) {
	m := newMailbox()
	m.Release()

	const writers, per = 4, 100
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				m.Push(string(rune('a'+w)) + string(rune('0'+i%10)))
			}
		}(w)
	}
	wg.Wait()

	got := m.Drain()
	if len(got) != writers*per {
		t.Fatalf("Drain() len=%d, want %d", len(got), writers*per)
	}
	next := make(map[byte]int)
	for _, f := range got {
		w, d := f[0], int(f[1]-'0')
		if d != next[w]%10 {
			t.Fatalf("writer %c out of order: got %d, want %d", w, d, next[w]%10)
		}
		next[w]++
	}
}
