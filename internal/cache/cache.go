// Package cache provides a small TTL cache for read paths that can
// tolerate slightly stale ledger state, such as reconciled bid lists.
// Expiry is checked on read; there is no background janitor, the
// owner's access pattern bounds memory.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a concurrency-safe map with per-entry TTL.
type Cache[K comparable, V any] struct {
	mu   sync.RWMutex
	ttl  time.Duration
	data map[K]entry[V]
	now  func() time.Time
}

// New creates a Cache whose entries live for ttl after each Put.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:  ttl,
		data: make(map[K]entry[V]),
		now:  time.Now,
	}
}

// Get returns the cached value and whether a live entry exists.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	if !ok || c.now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores a value, resetting its TTL.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	c.data[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Evict removes a key. Writers call it after mutating the underlying
// state so the next read goes to the source.
func (c *Cache[K, V]) Evict(key K) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Purge drops every entry, expired or not.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	c.data = make(map[K]entry[V])
	c.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not
// yet evicted by a read.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
