// Package cache holds the process-wide state replayed to newly connected
// viewers.
//
// A Cache is written by whatever produces the current state and read by every
// session at start-up. Reads copy the value under the lock and release it
// before the caller does any I/O.
package cache

import (
	"sync"
	"time"
)

// Cache is an optional value guarded by a mutex. The zero value is an empty
// cache ready for use.
//
// Values are handed out by copy. Reference types (slices, maps, pointers)
// must be treated as immutable once stored; replace them with Store instead
// of mutating in place.
type Cache[T any] struct {
	mu        sync.Mutex
	value     T
	present   bool
	version   uint64
	updatedAt time.Time
}

// Snapshot is a point-in-time copy of a Cache.
type Snapshot[T any] struct {
	Value     T
	Present   bool
	Version   uint64
	UpdatedAt time.Time
}

// New creates an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{}
}

// Load returns the current value and whether one is present.
func (c *Cache[T]) Load() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.present
}

// Snapshot returns the value together with its version metadata.
func (c *Cache[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot[T]{
		Value:     c.value,
		Present:   c.present,
		Version:   c.version,
		UpdatedAt: c.updatedAt,
	}
}

// Store replaces the value.
func (c *Cache[T]) Store(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.present = true
	c.bumpLocked()
}

// Clear removes the value. Subsequent loads report absence.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.present {
		return
	}
	var zero T
	c.value = zero
	c.present = false
	c.bumpLocked()
}

// Update applies fn to the current value under the lock. fn returns the new
// value and whether it should be present. fn must not block.
func (c *Cache[T]) Update(fn func(old T, ok bool) (T, bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := fn(c.value, c.present)
	if !ok {
		var zero T
		v = zero
	}
	c.value = v
	c.present = ok
	c.bumpLocked()
}

// Version returns a counter incremented on every change.
func (c *Cache[T]) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *Cache[T]) bumpLocked() {
	c.version++
	c.updatedAt = time.Now()
}
