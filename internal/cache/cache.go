// Package cache provides a bounded, key-addressed store for computed search
// results with least-recently-used eviction and per-entry time-to-live. It is
// the only shared mutable state in the search path and is safe for concurrent
// use; a single mutex guards the LRU list and map together because recency
// bookkeeping and map mutation cannot be decomposed without risking an
// inconsistent ordering.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// NoExpiry as a TTL makes an entry live until evicted or invalidated.
const NoExpiry time.Duration = -1

// Entry is a cached value with its bookkeeping.
type Entry struct {
	Key         string
	Value       any
	CreatedAt   time.Time
	AccessedAt  time.Time
	AccessCount int
	TTL         time.Duration
}

// Stats is a snapshot of cache usage counters.
type Stats struct {
	Size        int     `json:"size"`
	Capacity    int     `json:"capacity"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	HitRate     float64 `json:"hit_rate"`
}

// Config configures a Cache.
type Config struct {
	// Capacity is the maximum number of entries (default: 1000).
	Capacity int
	// DefaultTTL applies to Set calls that pass ttl=0 (default: 1 hour).
	DefaultTTL time.Duration
	// Clock overrides the time source, for tests.
	Clock func() time.Time
}

// Cache is an LRU cache with per-entry TTL.
type Cache struct {
	mu         sync.Mutex
	capacity   int
	defaultTTL time.Duration
	now        func() time.Time

	order   *list.List // front = most recently used
	entries map[string]*list.Element

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
}

// New creates a Cache.
func New(cfg Config) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1000
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Cache{
		capacity:   cfg.Capacity,
		defaultTTL: cfg.DefaultTTL,
		now:        cfg.Clock,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

// Key derives the canonical cache key for a search request. Filter pairs are
// sorted so semantically identical requests map to the same key regardless of
// caller-supplied ordering.
func Key(query string, topK int, filters map[string]string, collection string) string {
	filterKeys := make([]string, 0, len(filters))
	for k := range filters {
		filterKeys = append(filterKeys, k)
	}
	sort.Strings(filterKeys)

	pairs := make([]string, 0, len(filterKeys))
	for _, k := range filterKeys {
		pairs = append(pairs, k+"="+filters[k])
	}

	parts := []string{
		query,
		"collection=" + collection,
		"filters=" + strings.Join(pairs, ","),
		fmt.Sprintf("top_k=%d", topK),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// Get returns the value for key, or ok=false on a miss. A hit refreshes the
// entry's access bookkeeping and promotes it to most recently used. An entry
// whose TTL has elapsed is removed lazily and counted as an expiration plus a
// miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	entry := el.Value.(*Entry)
	if c.expired(entry) {
		c.remove(el)
		c.expirations++
		c.misses++
		return nil, false
	}

	entry.AccessedAt = c.now()
	entry.AccessCount++
	c.order.MoveToFront(el)
	c.hits++
	return entry.Value, true
}

// Set stores value under key. ttl=0 applies the default TTL; NoExpiry disables
// expiry. When the cache is at capacity and the key is new, the least recently
// used entry is evicted first.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	} else if c.order.Len() >= c.capacity {
		c.evictLRU()
	}

	now := c.now()
	el := c.order.PushFront(&Entry{
		Key:        key,
		Value:      value,
		CreatedAt:  now,
		AccessedAt: now,
		TTL:        ttl,
	})
	c.entries[key] = el
}

// Invalidate removes a specific entry, reporting whether it was present.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.remove(el)
	return true
}

// Clear removes all entries and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := c.order.Len()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
	return count
}

// SweepExpired eagerly removes every expired entry and returns the count, for
// callers who prefer not to rely on lazy expiry.
func (c *Cache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if c.expired(el.Value.(*Entry)) {
			c.remove(el)
			c.expirations++
			removed++
		}
		el = next
	}
	return removed
}

// Stats returns a consistent snapshot of the usage counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:        c.order.Len(),
		Capacity:    c.capacity,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		HitRate:     rate,
	}
}

func (c *Cache) expired(e *Entry) bool {
	if e.TTL <= 0 {
		return false
	}
	return c.now().Sub(e.CreatedAt) > e.TTL
}

func (c *Cache) remove(el *list.Element) {
	entry := el.Value.(*Entry)
	c.order.Remove(el)
	delete(c.entries, entry.Key)
}

func (c *Cache) evictLRU() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.remove(back)
	c.evictions++
}
