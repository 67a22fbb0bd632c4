// Package cache provides the per-detector TTL memoization and the
// single-flight de-duplication used to bound external call volume.
package cache

import (
	"sync"
	"time"
)

// entry pairs a cached value with its expiry.
type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// sweepEvery bounds how many Sets may pass between opportunistic sweeps.
const sweepEvery = 256

// TTL is a concurrency-safe map with per-cache time-to-live. Expiry is
// checked on read; a stale entry is never returned.
type TTL[T any] struct {
	mu   sync.RWMutex
	data map[string]entry[T]
	ttl  time.Duration
	now  func() time.Time
	sets int
}

// NewTTL creates a TTL cache. A non-positive ttl disables caching entirely.
func NewTTL[T any](ttl time.Duration) *TTL[T] {
	return &TTL[T]{
		data: make(map[string]entry[T]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// WithClock replaces the cache's clock. Used by tests to control expiry.
func (c *TTL[T]) WithClock(now func() time.Time) *TTL[T] {
	c.now = now
	return c
}

// Get returns the cached value for key if present and not expired.
func (c *TTL[T]) Get(key string) (T, bool) {
	var zero T
	if c.ttl <= 0 {
		return zero, false
	}

	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	if !ok || c.now().After(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the cache's TTL. Every sweepEvery
// insertions it also evicts expired entries, so long-lived caches stay
// bounded without an external janitor.
func (c *TTL[T]) Set(key string, value T) {
	if c.ttl <= 0 {
		return
	}

	now := c.now()
	c.mu.Lock()
	c.data[key] = entry[T]{value: value, expiresAt: now.Add(c.ttl)}
	c.sets++
	if c.sets >= sweepEvery {
		c.sets = 0
		c.sweepLocked(now)
	}
	c.mu.Unlock()
}

// Delete removes key from the cache.
func (c *TTL[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *TTL[T]) Clear() {
	c.mu.Lock()
	c.data = make(map[string]entry[T])
	c.mu.Unlock()
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *TTL[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Sweep removes expired entries immediately, independent of the sweeps
// Set performs on its own.
func (c *TTL[T]) Sweep() {
	now := c.now()
	c.mu.Lock()
	c.sweepLocked(now)
	c.mu.Unlock()
}

func (c *TTL[T]) sweepLocked(now time.Time) {
	for k, e := range c.data {
		if now.After(e.expiresAt) {
			delete(c.data, k)
		}
	}
}
