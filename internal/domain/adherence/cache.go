package adherence

import (
	"context"
	"sync"
	"time"

	"github.com/coelhotv/meus-remedios/internal/dosing"
)

type cacheEntry struct {
	userID    string
	stats     dosing.AdherenceStats
	expiresAt time.Time
}

// summaryCache is a thread-safe in-memory store of adherence summaries with
// lazy expiration. Entries are tagged with their user so every summary of a
// user can be dropped at once.
type summaryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func newSummaryCache(ttl time.Duration, now func() time.Time) *summaryCache {
	if now == nil {
		now = time.Now
	}
	return &summaryCache{entries: make(map[string]*cacheEntry), ttl: ttl, now: now}
}

func (c *summaryCache) get(key string) (dosing.AdherenceStats, bool) {
	if c.ttl <= 0 {
		return dosing.AdherenceStats{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return dosing.AdherenceStats{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return dosing.AdherenceStats{}, false
	}
	return entry.stats, true
}

func (c *summaryCache) set(userID, key string, stats dosing.AdherenceStats) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{userID: userID, stats: stats, expiresAt: c.now().Add(c.ttl)}
}

func (c *summaryCache) invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.entries {
		if v.userID == userID {
			delete(c.entries, k)
		}
	}
}

func (c *summaryCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *summaryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// startCleanup removes expired entries every interval until ctx is done.
func (c *summaryCache) startCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}
