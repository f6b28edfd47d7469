package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultRemovalInterval is how often expired entries are swept.
var DefaultRemovalInterval = 5 * time.Second

type entry struct {
	value interface{}
	expAt time.Time
}

// Cache is a thread-safe LRU cache with optional per-entry expiry.
type Cache struct {
	container *lru.Cache
	sweep     bool
}

// NewCache creates a Cache with the given capacity
func NewCache(capacity int) *Cache {
	c := new(Cache)
	c.container, _ = lru.New(capacity)
	return c
}

// NewCacheWithExpiringEntry creates a Cache that sweeps expired entries
// periodically and on insertion, in addition to the LRU eviction.
func NewCacheWithExpiringEntry(capacity int) *Cache {
	c := NewCache(capacity)
	c.sweep = true
	go func() {
		for range time.NewTicker(DefaultRemovalInterval).C {
			c.removeExpired()
		}
	}()
	return c
}

// Add adds an item. When the cache is full the oldest item is evicted.
// An optional expireAt makes the entry expire independent of LRU order.
func (c *Cache) Add(key, val interface{}, expireAt ...time.Time) {
	var expAt time.Time
	if len(expireAt) > 0 {
		expAt = expireAt[0]
	}
	c.removeExpired()
	c.container.Add(key, &entry{value: val, expAt: expAt})
}

// Get returns an item and updates its newness
func (c *Cache) Get(key interface{}) interface{} {
	v, _ := c.container.Get(key)
	if v == nil {
		return nil
	}
	e := v.(*entry)
	if !e.expAt.IsZero() && time.Now().After(e.expAt) {
		c.container.Remove(key)
		return nil
	}
	return e.value
}

// Peek returns an item without updating its newness
func (c *Cache) Peek(key interface{}) interface{} {
	v, _ := c.container.Peek(key)
	if v == nil {
		return nil
	}
	return v.(*entry).value
}

// Has checks whether an item exists without updating its newness
func (c *Cache) Has(key interface{}) bool {
	return c.container.Contains(key)
}

// Remove removes an item
func (c *Cache) Remove(key interface{}) {
	c.container.Remove(key)
}

// Keys returns all keys
func (c *Cache) Keys() []interface{} {
	return c.container.Keys()
}

// Len returns the number of items
func (c *Cache) Len() int {
	return c.container.Len()
}

func (c *Cache) removeExpired() {
	if !c.sweep {
		return
	}
	for _, k := range c.container.Keys() {
		v, ok := c.container.Peek(k)
		if !ok {
			continue
		}
		e := v.(*entry)
		if e.expAt.IsZero() {
			continue
		}
		if time.Now().After(e.expAt) {
			c.container.Remove(k)
		}
	}
}
