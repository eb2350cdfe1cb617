package kv

import "sync"

// cache keeps recently read objects in memory. Objects are immutable,
// so entries never go stale and eviction is allowed to be blunt: when
// full, drop an arbitrary entry.
type cache struct {
	max int

	mu    sync.RWMutex
	items map[string][]byte
}

func newCache(max int) *cache {
	return &cache{max: max, items: make(map[string][]byte)}
}

func (c *cache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *cache) has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[key]
	return ok
}

func (c *cache) add(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= c.max {
		for k := range c.items {
			delete(c.items, k)
			break
		}
	}
	c.items[key] = value
}
