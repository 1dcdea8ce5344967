// Package querycache implements the process-wide, concurrent-safe cache
// mapping normalized SQL text to its parsed statement (spec §5, Shared
// resources). Entries are immutable once published: a cache hit returns
// the same value every caller sees, so no statement mutates a cached
// entry in place.
package querycache

import (
	"sync"

	"github.com/zeebo/blake3"
)

// Key is a content-addressed cache key: the blake3-256 digest of
// normalized SQL text, grounded on core/cas's use of blake3.Sum256 for
// content-addressed keys (SPEC_FULL §11).
type Key [32]byte

// KeyOf hashes normalized SQL text into a Key.
func KeyOf(normalizedSQL string) Key {
	return Key(blake3.Sum256([]byte(normalizedSQL)))
}

// Cache is a process-wide cache from Key to an arbitrary prepared
// statement representation. The zero value is not usable; use New.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]any
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]any)}
}

// Get returns the entry for key, if published.
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Publish stores value under key if absent, returning the value now on
// record — either the caller's value, or a concurrently published one
// that won the race. Callers should discard their own value and use the
// return in that case, since published entries are never overwritten.
func (c *Cache) Publish(key Key, value any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing
	}
	c.entries[key] = value
	return value
}

// Len returns the number of published entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
