package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryCache is a process-local Cache bounded by entry count and bytes.
// Least recently used entries go first; expired entries are dropped when read
// or swept by StartCleanup. It backs single-instance deployments and tests.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element // of *memEntry
	recency  *list.List               // front is most recently used
	maxItems int
	maxBytes int64
	bytes    int64
	now      func() time.Time
	logger   *zap.Logger

	stats map[string]*FamilyStats
}

type memEntry struct {
	key     string
	family  string
	value   []byte
	expires time.Time // zero means no expiry
}

func (e *memEntry) size() int64 { return int64(len(e.key) + len(e.value)) }

// FamilyStats counts the traffic of one cache family (entity, last, ac, ...).
type FamilyStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
	Bytes     int64
}

// MemoryStats is a snapshot of the cache.
type MemoryStats struct {
	Entries  int
	Bytes    int64
	Families map[string]FamilyStats
}

// Evictions totals evictions across families.
func (s MemoryStats) Evictions() int64 {
	var n int64
	for _, f := range s.Families {
		n += f.Evictions
	}
	return n
}

// NewMemoryCache creates a cache holding at most maxItems entries and maxBytes
// of keys plus values.
func NewMemoryCache(maxItems int, maxBytes int64, logger *zap.Logger) *MemoryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryCache{
		entries:  make(map[string]*list.Element),
		recency:  list.New(),
		maxItems: maxItems,
		maxBytes: maxBytes,
		now:      time.Now,
		logger:   logger,
		stats:    make(map[string]*FamilyStats),
	}
}

// WithClock replaces the clock used for expiry.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

func (c *MemoryCache) family(name string) *FamilyStats {
	s, ok := c.stats[name]
	if !ok {
		s = &FamilyStats{}
		c.stats[name] = s
	}
	return s
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.family(Family(key))
	el, ok := c.entries[key]
	if !ok {
		stats.Misses++
		return nil, false, nil
	}
	e := el.Value.(*memEntry)
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.unlink(el)
		stats.Misses++
		return nil, false, nil
	}
	c.recency.MoveToFront(el)
	stats.Hits++
	return append([]byte(nil), e.value...), true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.unlink(el)
	}
	e := &memEntry{key: key, family: Family(key), value: append([]byte(nil), value...)}
	if e.size() > c.maxBytes {
		// The stale value is already gone, so the write reads as an eviction.
		c.logger.Warn("Item too large for cache",
			zap.String("cache_key", key),
			zap.Int64("size", e.size()),
			zap.Int64("max_memory", c.maxBytes),
		)
		return nil
	}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}

	for c.recency.Len() > 0 && (c.bytes+e.size() > c.maxBytes || len(c.entries) >= c.maxItems) {
		oldest := c.recency.Back()
		c.family(oldest.Value.(*memEntry).family).Evictions++
		c.unlink(oldest)
	}

	c.entries[key] = c.recency.PushFront(e)
	c.bytes += e.size()
	stats := c.family(e.family)
	stats.Entries++
	stats.Bytes += e.size()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.unlink(el)
	}
	return nil
}

// Flush drops every entry. Counters are kept.
func (c *MemoryCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.recency.Init()
	c.bytes = 0
	for _, s := range c.stats {
		s.Entries, s.Bytes = 0, 0
	}
}

// unlink removes el. c.mu must be held.
func (c *MemoryCache) unlink(el *list.Element) {
	e := el.Value.(*memEntry)
	c.recency.Remove(el)
	delete(c.entries, e.key)
	c.bytes -= e.size()
	stats := c.family(e.family)
	stats.Entries--
	stats.Bytes -= e.size()
}

// Stats returns a snapshot of the per-family counters.
func (c *MemoryCache) Stats() MemoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := MemoryStats{Entries: len(c.entries), Bytes: c.bytes, Families: make(map[string]FamilyStats, len(c.stats))}
	for name, s := range c.stats {
		out.Families[name] = *s
	}
	return out
}

// StartCleanup sweeps expired entries every interval until ctx is done.
func (c *MemoryCache) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.sweep(); n > 0 {
					c.logger.Debug("Cleaned up expired cache items", zap.Int("count", n))
				}
			}
		}
	}()
}

func (c *MemoryCache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for el := c.recency.Back(); el != nil; {
		prev := el.Prev()
		if e := el.Value.(*memEntry); !e.expires.IsZero() && now.After(e.expires) {
			c.unlink(el)
			removed++
		}
		el = prev
	}
	return removed
}
