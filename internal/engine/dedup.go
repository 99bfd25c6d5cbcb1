package engine

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultDedupTTL is how long a broadcast id is remembered.
	DefaultDedupTTL = 60 * time.Second

	// DefaultDedupSize bounds the number of remembered broadcast ids.
	DefaultDedupSize = 4096
)

// Deduper reports whether a broadcast id was seen recently and records it.
// Implemented by DedupCache (in-process) and redisstate.Dedup (shared).
type Deduper interface {
	SeenOrRecord(ctx context.Context, broadcastID string) bool
}

// DedupCache remembers broadcast ids for a retention window.
//
// Memory is bounded by an LRU: when it is full, the oldest ids are evicted
// early and may be treated as new. Reprocessing a stale OPEN only repeats
// an idempotent board open, so this approximation is acceptable.
//
// Thread-safety: the check and the record happen under one lock.
type DedupCache struct {
	mu      sync.Mutex
	clock   Clock
	ttl     time.Duration
	entries *lru.Cache[string, time.Time]
}

// NewDedupCache creates a cache. Non-positive ttl or size select the
// defaults.
func NewDedupCache(clock Clock, ttl time.Duration, size int) *DedupCache {
	if clock == nil {
		clock = SystemClock{}
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	if size <= 0 {
		size = DefaultDedupSize
	}
	entries, err := lru.New[string, time.Time](size)
	if err != nil {
		// Only returned for a non-positive size, which is excluded above.
		panic(err)
	}
	return &DedupCache{clock: clock, ttl: ttl, entries: entries}
}

// SeenOrRecord returns true if broadcastID was recorded within the TTL.
// Otherwise it records the id and returns false. An empty id is never
// deduplicated.
func (c *DedupCache) SeenOrRecord(_ context.Context, broadcastID string) bool {
	if broadcastID == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if at, ok := c.entries.Get(broadcastID); ok && now.Sub(at) < c.ttl {
		return true
	}
	c.entries.Add(broadcastID, now)
	return false
}

// Len returns the number of ids held, including expired ones not yet
// overwritten or evicted.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
