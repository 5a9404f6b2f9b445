// Package cache stores compiled shader binaries between runs.
//
// Shaders is a byte-bounded LRU keyed by string. When the total size of
// the cached values exceeds the limit, the least recently used entries are
// evicted until it fits again:
//
//	c := cache.New(cache.DefaultMaxBytes)
//	if err := c.LoadFile(path); err != nil {
//		log.Warn("shader cache ignored", "err", err)
//	}
//	c.Put(cache.Key(source), binary)
//	bin, ok := c.Get(cache.Key(source))
//
// Shaders is safe for concurrent use and must not be copied after creation.
package cache

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// DefaultMaxBytes is the default size limit, 10 MiB.
const DefaultMaxBytes = 10 << 20

// Shaders is a thread-safe byte-bounded LRU cache.
type Shaders struct {
	mu       sync.Mutex
	entries  map[string]*lruNode[string, []byte]
	order    lruList[string, []byte]
	maxBytes int
	bytes    int
	dirty    bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates an empty cache holding at most maxBytes of values.
// A maxBytes of 0 or less selects DefaultMaxBytes.
func New(maxBytes int) *Shaders {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Shaders{
		entries:  make(map[string]*lruNode[string, []byte]),
		maxBytes: maxBytes,
	}
}

// Key derives a cache key from shader source and any further inputs that
// affect the compiled result.
func Key(parts ...[]byte) string {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write(p) // fnv.Write never returns an error
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Get returns the value for key and marks it most recently used.
func (c *Shaders) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.order.MoveToFront(node)
	return node.value, true
}

// Put stores value under key. Values larger than the limit are not cached.
func (c *Shaders) Put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, value)
}

func (c *Shaders) putLocked(key string, value []byte) {
	if len(value) > c.maxBytes {
		return
	}
	if node, ok := c.entries[key]; ok {
		c.bytes += len(value) - len(node.value)
		node.value = value
		c.order.MoveToFront(node)
	} else {
		c.entries[key] = c.order.PushFront(key, value)
		c.bytes += len(value)
	}
	c.dirty = true
	c.evictLocked()
}

// evictLocked drops the oldest entries until the cache fits.
func (c *Shaders) evictLocked() {
	for c.bytes > c.maxBytes {
		oldest := c.order.Oldest()
		if oldest == nil {
			return
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.key)
		c.bytes -= len(oldest.value)
		c.evictions.Add(1)
	}
}

// Delete removes key. It reports whether the key was present.
func (c *Shaders) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(node)
	delete(c.entries, key)
	c.bytes -= len(node.value)
	c.dirty = true
	return true
}

// Clear removes all entries.
func (c *Shaders) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*lruNode[string, []byte])
	c.order.Clear()
	c.bytes = 0
	c.dirty = true
}

// Len returns the number of entries.
func (c *Shaders) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Bytes returns the total size of the cached values.
func (c *Shaders) Bytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Dirty reports whether the cache changed since it was last loaded or saved.
func (c *Shaders) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Stats returns cache statistics.
func (c *Shaders) Stats() Stats {
	c.mu.Lock()
	n, b := len(c.entries), c.bytes
	c.mu.Unlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Len:       n,
		Bytes:     b,
		MaxBytes:  c.maxBytes,
		Hits:      hits,
		Misses:    misses,
		HitRate:   rate,
		Evictions: c.evictions.Load(),
	}
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int `json:"len"`
	// Bytes is the total size of the cached values.
	Bytes int `json:"bytes"`
	// MaxBytes is the size limit.
	MaxBytes int `json:"max_bytes"`
	// Hits is the number of cache hits.
	Hits uint64 `json:"hits"`
	// Misses is the number of cache misses.
	Misses uint64 `json:"misses"`
	// HitRate is the cache hit rate 0.0 to 1.0.
	HitRate float64 `json:"hit_rate"`
	// Evictions is the number of evicted entries.
	Evictions uint64 `json:"evictions"`
}
