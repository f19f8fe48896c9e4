package engine

import (
	"sync"
)

// Cache holds the computed values of a property. A key is written at most
// once per run; later writes are ignored. Values may themselves be caches,
// which makes nested values addressable by dotted paths.
type Cache struct {
	mu   sync.RWMutex
	keys []string
	data map[string]interface{}
}

func NewCache() *Cache {
	return &Cache{data: make(map[string]interface{})}
}

// Set stores value under key and reports whether it was stored.
func (c *Cache) Set(key string, value interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.data[key]; ok {
		return false
	}
	c.data[key] = value
	c.keys = append(c.keys, key)
	return true
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.data[key]
	return v, ok
}

// Keys returns the populated keys in the order they were set.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]string(nil), c.keys...)
}

// Lookup walks path through nested caches.
func (c *Cache) Lookup(path []string) (interface{}, bool) {
	var cur interface{} = c
	for _, key := range path {
		cache, ok := cur.(*Cache)
		if !ok {
			return nil, false
		}
		if cur, ok = cache.Get(key); !ok {
			return nil, false
		}
	}
	return cur, true
}

// memoize returns the value cached under key, computing and storing it on
// first use. Errors are not cached.
func memoize[T any](c *Cache, key string, fn func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v.(T), nil
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	if !c.Set(key, v) {
		stored, _ := c.Get(key)
		return stored.(T), nil
	}
	return v, nil
}
