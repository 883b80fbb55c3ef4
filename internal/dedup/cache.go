// Package dedup provides the webhook idempotency cache: an in-memory TTL set
// keyed by the upstream event id. It is intentionally not persisted; a missed
// duplicate after a restart causes a repeated reply, not corruption.
package dedup

import (
	"sync"
	"time"
)

// DefaultTTL is the window within which an event id is considered a duplicate.
const DefaultTTL = 300 * time.Second

// Cache is a concurrency-safe seen-set with lazy TTL eviction. Stale entries
// are pruned on each Seen call rather than by a background sweeper.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[int64]time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the duplicate window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache with the default TTL.
func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:  DefaultTTL,
		now:  time.Now,
		seen: make(map[int64]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seen reports whether eventID was observed within the TTL window. When it
// was not, the id is recorded and Seen returns false; the next call within
// the window returns true.
func (c *Cache) Seen(eventID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, at := range c.seen {
		if now.Sub(at) > c.ttl {
			delete(c.seen, id)
		}
	}

	if _, ok := c.seen[eventID]; ok {
		return true
	}
	c.seen[eventID] = now
	return false
}

// Len returns the number of live entries, for observability.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
