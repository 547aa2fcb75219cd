package waittime

import (
	"sync"
	"time"
)

type cacheEntry struct {
	table     map[string]int
	fetchedAt time.Time
}

// Cache holds parsed wait-time tables keyed by source URL for the process
// lifetime. Entries expire lazily after the TTL; a stale entry is simply
// treated as absent and overwritten by the next successful fetch
// (last-writer-wins). Concurrent duplicate fetches of the same stale key are
// tolerated — the pages are idempotent GET resources.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *Cache) Get(url string) (map[string]int, bool) {
	c.mu.RLock()
	entry, ok := c.entries[url]
	c.mu.RUnlock()
	if !ok || c.now().Sub(entry.fetchedAt) > c.ttl {
		return nil, false
	}
	return entry.table, true
}

func (c *Cache) Put(url string, table map[string]int) {
	c.mu.Lock()
	c.entries[url] = cacheEntry{table: table, fetchedAt: c.now()}
	c.mu.Unlock()
}
