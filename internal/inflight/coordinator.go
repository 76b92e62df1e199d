// Package inflight guarantees at most one concurrent production attempt
// per (content key, variant key) pair within the process.
package inflight

import (
	"sync"

	"github.com/iconidentify/mediarelay/internal/domain"
)

type lockKey struct {
	content domain.ContentKey
	variant domain.VariantKey
}

type entry struct {
	mu sync.Mutex
	// refs counts holders plus waiters; the map entry is evicted when
	// it drops to zero so the table does not grow without bound.
	refs int
}

// Coordinator owns the table of per-key locks. Locks are created lazily
// on first use and evicted once released with no waiters, which keeps
// the mutual-exclusion contract while bounding memory.
type Coordinator struct {
	mu    sync.Mutex
	locks map[lockKey]*entry
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{locks: make(map[lockKey]*entry)}
}

// Lock blocks until the caller holds the exclusive lock for the pair
// and returns the release function. Distinct pairs never contend.
func (c *Coordinator) Lock(content domain.ContentKey, variant domain.VariantKey) (release func()) {
	key := lockKey{content: content.Canonical(), variant: variant}

	c.mu.Lock()
	e, ok := c.locks[key]
	if !ok {
		e = &entry{}
		c.locks[key] = e
	}
	e.refs++
	c.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			c.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(c.locks, key)
			}
			c.mu.Unlock()
		})
	}
}

// Size reports the number of live lock entries, for observability.
func (c *Coordinator) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
