// Package cache provides a read-through document cache: a bounded,
// TTL-expiring LRU keyed by (collection, doc_id), backed by
// hashicorp/golang-lru/v2's expirable.LRU. Grounded on the domain
// stack's golang-lru dependency (carried for exactly this "cap memory,
// expire stale entries" shape) and on this module's explicit-sink
// convention (internal/events.CacheSink), fired on every eviction the
// way pkg/lockmgr fires LockSink on every acquire/release.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bobboyms/docengine/internal/events"
)

// Key identifies one cached document.
type Key struct {
	Collection string
	DocID      string
}

// Cache is a bounded, TTL-expiring cache of arbitrary values (document
// snapshots, query result pages) keyed by Key.
type Cache[V any] struct {
	name  string
	inner *expirable.LRU[Key, V]
	sinks []events.CacheSink
}

// New builds a Cache holding at most size entries, each expiring ttl
// after insertion (ttl of 0 disables expiration, relying on size alone).
// name identifies this cache instance in eviction notifications (a
// server may run several, e.g. one per collection type).
func New[V any](name string, size int, ttl time.Duration, sinks ...events.CacheSink) *Cache[V] {
	c := &Cache[V]{name: name, sinks: sinks}
	c.inner = expirable.NewLRU[Key, V](size, c.onEvict, ttl)
	return c
}

func (c *Cache[V]) onEvict(key Key, _ V) {
	for _, s := range c.sinks {
		s.OnItemEvicted(c.name+":"+key.Collection+":"+key.DocID, "capacity_or_ttl")
	}
}

// Get returns the cached value for key, reporting whether it was
// present and unexpired.
func (c *Cache[V]) Get(key Key) (V, bool) {
	return c.inner.Get(key)
}

// Set inserts or replaces the cached value for key, resetting its TTL.
func (c *Cache[V]) Set(key Key, value V) {
	c.inner.Add(key, value)
}

// Invalidate removes key from the cache if present. Returns whether an
// entry was removed.
func (c *Cache[V]) Invalidate(key Key) bool {
	return c.inner.Remove(key)
}

// InvalidateCollection removes every cached entry belonging to
// collection, for use after a collection-wide mutation (e.g. a dropped
// collection) invalidates everything under it at once.
func (c *Cache[V]) InvalidateCollection(collection string) int {
	removed := 0
	for _, key := range c.inner.Keys() {
		if key.Collection == collection {
			if c.inner.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

// Len reports the current number of cached entries.
func (c *Cache[V]) Len() int {
	return c.inner.Len()
}

// Purge empties the cache entirely.
func (c *Cache[V]) Purge() {
	c.inner.Purge()
}
