package keymutex

import (
	"context"
	"sync"
)

// Mutex serializes work per key. Locks are created on demand and removed once
// the last holder or waiter releases them.
type Mutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

func New() *Mutex {
	return &Mutex{entries: map[string]*entry{}}
}

// Acquire blocks until the key's lock is held or ctx is done. On success the
// returned release function must be called exactly once.
func (m *Mutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			m.release(key, e)
		}, nil
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}
}

// Locked reports whether the key's lock is currently held.
func (m *Mutex) Locked(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return ok && len(e.ch) > 0
}

func (m *Mutex) release(key string, e *entry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}
