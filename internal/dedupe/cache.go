// ABOUTME: TTL cache for deduplicating gateway message events
// ABOUTME: Redelivered events are processed once per TTL window

package dedupe

import (
	"sync"
	"time"
)

// Cache tracks seen event IDs for a TTL window so redelivered events are not
// processed twice. Safe for concurrent use.
type Cache struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// New creates a cache with the given TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// CheckAndMark reports whether key was already seen inside the TTL window,
// marking it seen either way. Expired entries are swept opportunistically.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if ts, ok := c.seen[key]; ok && now.Sub(ts) < c.ttl {
		return true
	}
	for k, ts := range c.seen {
		if now.Sub(ts) >= c.ttl {
			delete(c.seen, k)
		}
	}
	c.seen[key] = now
	return false
}

// Len returns the number of tracked keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
