package memo

import (
	"sync"
	"time"
)

// entry stores one cached value with expiry.
type entry[V any] struct {
	expiresAt time.Time
	value     V
}

// Cache is a small TTL map safe for concurrent use.
// A non-positive TTL disables expiry; MaxItems caps the size best-effort.
type Cache[V any] struct {
	TTL      time.Duration
	MaxItems int
	Now      func() time.Time

	mu    sync.RWMutex
	items map[string]entry[V]
}

// New returns a cache with the given TTL and size cap.
func New[V any](ttl time.Duration, maxItems int) *Cache[V] {
	return &Cache[V]{TTL: ttl, MaxItems: maxItems, items: make(map[string]entry[V])}
}

func (c *Cache[V]) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || (c.TTL > 0 && !c.now().Before(e.expiresAt)) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key.
func (c *Cache[V]) Set(key string, value V) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = make(map[string]entry[V])
	}
	c.items[key] = entry[V]{expiresAt: now.Add(c.TTL), value: value}

	if c.MaxItems <= 0 || len(c.items) <= c.MaxItems {
		return
	}
	// expired first, then arbitrary keys until under the cap
	for k, v := range c.items {
		if c.TTL > 0 && now.After(v.expiresAt) {
			delete(c.items, k)
		}
	}
	for k := range c.items {
		if len(c.items) <= c.MaxItems {
			break
		}
		if k != key {
			delete(c.items, k)
		}
	}
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
