package fetch

import (
	"sync"
	"time"

	"github.com/fetchguard/fetchguard/internal/metrics"
)

// CacheEntry is one cached fetch result.
type CacheEntry struct {
	Content   string
	FetchedAt time.Time
	ExpiresAt time.Time
}

// CacheStats exposes hit/miss accounting for observability.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Sets      uint64
	Evictions uint64
	Skips     uint64 // sets refused because the content was too large
}

// RequestCache is a TTL-bounded key/value store with oldest-first
// eviction under key-count pressure. It is read before any network
// access and written only by the single in-flight fetch owning a key.
type RequestCache struct {
	mu         sync.Mutex
	entries    map[string]CacheEntry
	order      []string // insertion order, oldest first
	ttl        time.Duration
	maxKeys    int
	maxContent int
	clock      Clock
	stats      CacheStats
}

// NewRequestCache builds a cache. Content longer than maxContent bytes
// is never stored, bounding memory per entry.
func NewRequestCache(ttl time.Duration, maxKeys, maxContent int, clock Clock) *RequestCache {
	return &RequestCache{
		entries:    make(map[string]CacheEntry),
		ttl:        ttl,
		maxKeys:    maxKeys,
		maxContent: maxContent,
		clock:      clock,
	}
}

// Get returns the entry for key if it exists and has not expired.
// Expired entries are removed on access.
func (c *RequestCache) Get(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		metrics.RecordCacheEvent("miss")
		return CacheEntry{}, false
	}
	if !c.clock.Now().Before(entry.ExpiresAt) {
		delete(c.entries, key)
		c.stats.Misses++
		metrics.RecordCacheEvent("miss")
		return CacheEntry{}, false
	}
	c.stats.Hits++
	metrics.RecordCacheEvent("hit")
	return entry, true
}

// Set stores content under key. Oversized content is silently skipped;
// when the key count would exceed the maximum, the oldest entries are
// evicted first.
func (c *RequestCache) Set(key, content string) {
	if len(content) > c.maxContent {
		c.mu.Lock()
		c.stats.Skips++
		c.mu.Unlock()
		metrics.RecordCacheEvent("skip")
		return
	}
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = CacheEntry{
		Content:   content,
		FetchedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	c.stats.Sets++
	metrics.RecordCacheEvent("set")
	c.evictLocked()
}

// evictLocked drops oldest entries until the key count fits. The order
// slice may hold keys already deleted by TTL expiry; those are skipped.
func (c *RequestCache) evictLocked() {
	for len(c.entries) > c.maxKeys && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.entries[oldest]; !ok {
			continue
		}
		delete(c.entries, oldest)
		c.stats.Evictions++
		metrics.RecordCacheEvent("eviction")
	}
}

// Stats returns a snapshot of the counters.
func (c *RequestCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Len returns the live entry count.
func (c *RequestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
