// Package cache provides a generic in-memory cache with per-entry TTL and
// least-recently-used eviction. Expiry is lazy: stale entries are dropped
// when they are next read.
package cache

import (
	"reflect"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// DefaultMaxSize is used when Options.MaxSize is not positive
	DefaultMaxSize = 1000
)

// Options configures a Cache
type Options[V any] struct {
	MaxSize    int           // Maximum number of entries before LRU eviction
	DefaultTTL time.Duration // TTL applied by Set; zero means entries never expire
	// Clone copies values on the way in and out so callers never share
	// memory with a stored entry. Nil stores values as-is.
	Clone func(V) V
	// SizeOf estimates the footprint of a value for Stats.MemoryBytes.
	// It runs on every Set and must not walk the value. Nil uses a shallow
	// estimate from the value's kind and length.
	SizeOf func(V) int64
	// Now overrides the clock, mainly for tests
	Now func() time.Time
}

// Stats reports cache effectiveness counters
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	HitRate     float64 `json:"hit_rate"`
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	MemoryBytes int64   `json:"memory_bytes"`
}

// entry holds a stored value and its bookkeeping. The value itself is never
// mutated after Set; a later Set on the same key swaps in a new entry.
type entry[V any] struct {
	value          V
	createdAt      time.Time
	ttl            time.Duration
	lastAccessedAt time.Time
	accessCount    int64
	size           int64
}

func (e *entry[V]) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// Cache is an in-memory TTL + least-recently-used cache keyed by string.
// All methods are safe for concurrent use.
type Cache[V any] struct {
	mu         sync.Mutex
	lru        *simplelru.LRU[string, *entry[V]]
	maxSize    int
	defaultTTL time.Duration
	clone      func(V) V
	sizeOf     func(V) int64
	now        func() time.Time

	hits      int64
	misses    int64
	evictions int64
	bytes     int64
}

// New creates a cache. A non-positive MaxSize falls back to DefaultMaxSize.
func New[V any](opts Options[V]) *Cache[V] {
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Cache[V]{
		maxSize:    maxSize,
		defaultTTL: opts.DefaultTTL,
		clone:      opts.Clone,
		sizeOf:     opts.SizeOf,
		now:        now,
	}

	// NewLRU only fails on a non-positive size, which is ruled out above
	l, _ := simplelru.NewLRU[string, *entry[V]](maxSize, c.onEvict)
	c.lru = l
	return c
}

// onEvict runs under c.mu for every removal, including Remove and Purge
func (c *Cache[V]) onEvict(_ string, e *entry[V]) {
	c.bytes -= e.size
}

// Get returns the value for key. Expired entries are removed and reported
// as a miss. A hit refreshes the entry's recency and access counters.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return zero, false
	}

	now := c.now()
	if e.expired(now) {
		c.lru.Remove(key)
		c.misses++
		return zero, false
	}

	e.lastAccessedAt = now
	e.accessCount++
	c.hits++
	return c.copyValue(e.value), true
}

// Set stores value under key with the default TTL
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key, replacing any existing entry. A
// non-positive ttl means the entry does not expire. Inserting a new key
// into a full cache evicts the least recently accessed entry first.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	stored := c.copyValue(value)
	size := c.estimateSize(stored)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e := &entry[V]{
		value:          stored,
		createdAt:      now,
		ttl:            ttl,
		lastAccessedAt: now,
		size:           size,
	}

	if old, ok := c.lru.Peek(key); ok {
		c.bytes -= old.size
	}
	if evicted := c.lru.Add(key, e); evicted {
		c.evictions++
	}
	c.bytes += size
}

// Delete removes key and reports whether it was present
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Has reports whether key holds a live entry. It does not affect recency,
// but it does drop the entry if it has expired.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	if !ok {
		return false
	}
	if e.expired(c.now()) {
		c.lru.Remove(key)
		return false
	}
	return true
}

// Size returns the number of stored entries, including expired entries
// that have not been touched since they expired
func (c *Cache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear removes all entries. Counters are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.bytes = 0
}

// Prune removes every expired entry and returns how many were dropped. It is
// O(n) and meant for reporting paths, not request handling.
func (c *Cache[V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if ok && e.expired(now) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of the counters
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		HitRate:     rate,
		Size:        c.lru.Len(),
		MaxSize:     c.maxSize,
		MemoryBytes: c.bytes,
	}
}

func (c *Cache[V]) copyValue(v V) V {
	if c.clone == nil {
		return v
	}
	return c.clone(v)
}

// estimateSize returns the SizeOf estimate, or the shallow one. A sizer
// that panics counts as zero.
func (c *Cache[V]) estimateSize(v V) (size int64) {
	defer func() {
		if recover() != nil {
			size = 0
		}
	}()
	if c.sizeOf != nil {
		return max(c.sizeOf(v), 0)
	}
	return shallowSize(reflect.ValueOf(v))
}

// shallowSize is O(1): strings count their bytes, slices and maps their
// length times element size, and channels and funcs nothing
func shallowSize(v reflect.Value) int64 {
	if !v.IsValid() {
		return 0
	}
	switch v.Kind() {
	case reflect.String:
		return int64(v.Len())
	case reflect.Slice, reflect.Array:
		return int64(v.Len()) * int64(v.Type().Elem().Size())
	case reflect.Map:
		return int64(v.Len()) * int64(v.Type().Key().Size()+v.Type().Elem().Size())
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return 0
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return 0
		}
		return shallowSize(v.Elem())
	default:
		return int64(v.Type().Size())
	}
}
