package cache

import (
	"sync"
	"time"
)

// entry stores a cached value with TTL
type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache is a concurrency-safe key/value store with per-entry TTL. It is a
// pure optimization layer: callers must treat the backing store as the
// source of truth and tolerate bounded staleness.
type Cache struct {
	entries sync.Map // string -> entry
}

func New() *Cache {
	return &Cache{}
}

// Get returns the cached value for key, or false if absent or expired.
// Expired entries are removed lazily on read.
func (c *Cache) Get(key string) (interface{}, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	e := v.(entry)
	if time.Now().After(e.expiresAt) {
		c.entries.Delete(key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for the given TTL.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.entries.Store(key, entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
}

// Delete removes a single key.
func (c *Cache) Delete(key string) {
	c.entries.Delete(key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.entries.Range(func(key, _ interface{}) bool {
		c.entries.Delete(key)
		return true
	})
}
