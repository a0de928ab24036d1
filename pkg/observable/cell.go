package observable

import (
	"slices"
	"sync"
)

// Cell holds a single value and notifies subscribers of every change.
//
// Notifications are delivered synchronously and in the order the changes
// were made. A subscriber may read the cell but must not write to it from
// inside its callback.
type Cell[T any] struct {
	emitMu sync.Mutex // serialises change + notification
	mu     sync.RWMutex
	value  T
	subs   map[uint64]func(T)
	nextID uint64
}

// NewCell creates a Cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value: initial,
		subs:  make(map[uint64]func(T)),
	}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set replaces the value and notifies subscribers.
func (c *Cell[T]) Set(v T) {
	c.Update(func(T) (T, bool) { return v, true })
}

// Update atomically computes the next value from the current one. When fn
// reports false nothing changes and no notification is sent. It returns
// whether the value was replaced.
func (c *Cell[T]) Update(fn func(current T) (T, bool)) bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	next, ok := fn(c.value)
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.value = next
	subs := c.snapshot()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return true
}

// Subscribe registers fn. It is called immediately with the current value
// and then on every change until the returned cancel func is called.
func (c *Cell[T]) Subscribe(fn func(T)) (cancel func()) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	current := c.value
	c.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (c *Cell[T]) Subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

func (c *Cell[T]) snapshot() []func(T) {
	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(T), 0, len(ids))
	for _, id := range ids {
		out = append(out, c.subs[id])
	}
	return out
}
