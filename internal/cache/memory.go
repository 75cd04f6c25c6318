package cache

import (
	"context"
	"sync"
	"time"

	"aris/internal/metrics"

	"github.com/rs/zerolog"
)

// MemoryCache is an in-process cache. Expired entries are misses but stay in
// the map until a sweep removes them.
type MemoryCache struct {
	ttl       time.Duration
	highWater int
	now       func() time.Time
	logger    zerolog.Logger
	// afterScan runs between the scan and delete phases of Sweep; tests only.
	afterScan func()

	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewMemoryCache(ttl time.Duration, highWater int, logger zerolog.Logger) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if highWater <= 0 {
		highWater = DefaultHighWater
	}
	return &MemoryCache{
		ttl:       ttl,
		highWater: highWater,
		now:       time.Now,
		logger:    logger.With().Str("component", "cache").Logger(),
		entries:   make(map[string]*Entry),
	}
}

func (c *MemoryCache) Lookup(_ context.Context, prompt string) (string, bool) {
	key := Normalize(prompt)
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !e.validAt(c.now(), c.ttl) {
		return "", false
	}
	return e.Response, true
}

func (c *MemoryCache) Store(ctx context.Context, prompt, response string) {
	c.admit(ctx, &Entry{Key: Normalize(prompt), Response: response, CreatedAt: c.now()})
}

// admit inserts e and sweeps once the map grows past the high-water mark.
func (c *MemoryCache) admit(ctx context.Context, e *Entry) {
	c.put(e)
	if c.Len() > c.highWater {
		c.Sweep(ctx)
	}
}

func (c *MemoryCache) put(e *Entry) {
	c.mu.Lock()
	c.entries[e.Key] = e
	c.mu.Unlock()
}

// Sweep removes every entry whose age at the start of the sweep is at least
// the TTL. Keys replaced while the sweep runs are left alone.
func (c *MemoryCache) Sweep(_ context.Context) int {
	cutoff := c.now()

	c.mu.RLock()
	expired := make(map[string]*Entry)
	for k, e := range c.entries {
		if !e.validAt(cutoff, c.ttl) {
			expired[k] = e
		}
	}
	c.mu.RUnlock()

	if c.afterScan != nil {
		c.afterScan()
	}

	removed := 0
	c.mu.Lock()
	for k, e := range expired {
		if c.entries[k] == e {
			delete(c.entries, k)
			removed++
		}
	}
	n := len(c.entries)
	c.mu.Unlock()

	metrics.AddCacheSwept(removed)
	metrics.SetCacheEntries(n)
	if removed > 0 {
		c.logger.Debug().Int("removed", removed).Int("entries", n).Msg("cache swept")
	}
	return removed
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Run sweeps on a fixed cadence until ctx is done.
func (c *MemoryCache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}
