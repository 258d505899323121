// Package cache provides bounded, recency-ordered caches with hit/miss
// accounting, built on hashicorp's LRU list implementation.
package cache

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Stats is a point-in-time snapshot of cache effectiveness counters.
type Stats struct {
	// Size is the current number of cached entries.
	Size int `json:"size"`

	// MaxSize is the configured bound.
	MaxSize int `json:"max_size"`

	// Hits counts Get calls that found their key.
	Hits uint64 `json:"hits"`

	// Misses counts Get calls that did not.
	Misses uint64 `json:"misses"`

	// HitRate is Hits / (Hits + Misses), or 0 before any lookup.
	HitRate float64 `json:"hit_rate"`
}

// LRU is a bounded least-recently-used cache. Get and Put both refresh
// recency. All methods are safe for concurrent use; a single mutex per cache
// instance serializes access.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	entries *simplelru.LRU[K, V]
	maxSize int
	hits    uint64
	misses  uint64
}

// NewLRU creates a cache bounded to maxSize entries. Sizes below 1 are
// clamped to 1.
func NewLRU[K comparable, V any](maxSize int) *LRU[K, V] {
	if maxSize < 1 {
		maxSize = 1
	}
	// simplelru only errors on a non-positive size, which is clamped above.
	entries, _ := simplelru.NewLRU[K, V](maxSize, nil)
	return &LRU[K, V]{
		entries: entries,
		maxSize: maxSize,
	}
}

// Get returns the cached value and refreshes its recency. The second result
// reports whether the key was present; either way the lookup is counted.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.entries.Get(key)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return value, ok
}

// Peek returns the cached value without refreshing recency or counting the
// lookup.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Peek(key)
}

// Put stores a value, refreshing recency and evicting the least-recently-used
// entry when the bound is exceeded.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, value)
}

// Remove drops a single entry. It reports whether the key was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Remove(key)
}

// Clear drops all entries. Counters are preserved.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Len returns the current number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Keys returns the cached keys ordered from least to most recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Keys()
}

// Stats returns a snapshot of size and hit/miss counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:    c.entries.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}
