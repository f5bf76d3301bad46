package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type taggedValue struct {
	tag  string
	data []byte
}

// MemoryCache кеш в памяти процесса поверх go-cache
type MemoryCache struct {
	store *gocache.Cache

	mu   sync.Mutex
	tags map[string]map[string]struct{}
	gens map[string]int64
}

func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	c := &MemoryCache{
		store: gocache.New(defaultTTL, 2*defaultTTL),
		tags:  make(map[string]map[string]struct{}),
		gens:  make(map[string]int64),
	}
	c.store.OnEvicted(c.evicted)

	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	v, found := c.store.Get(key)
	if !found {
		return nil, ErrCacheMiss
	}

	tv, ok := v.(taggedValue)
	if !ok {
		return nil, ErrCacheMiss
	}

	out := make([]byte, len(tv.data))
	copy(out, tv.data)
	return out, nil
}

func (c *MemoryCache) Generation(_ context.Context, tag string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gens[tag], nil
}

func (c *MemoryCache) Set(_ context.Context, key, tag string, gen int64, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}

	data := make([]byte, len(value))
	copy(data, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[tag] != gen {
		return ErrStale
	}

	c.store.Set(key, taggedValue{tag: tag, data: data}, ttl)

	keys, ok := c.tags[tag]
	if !ok {
		keys = make(map[string]struct{})
		c.tags[tag] = keys
	}
	keys[key] = struct{}{}

	return nil
}

func (c *MemoryCache) InvalidateTag(_ context.Context, tag string) error {
	c.mu.Lock()
	c.gens[tag]++
	keys := c.tags[tag]
	delete(c.tags, tag)
	c.mu.Unlock()

	// Delete вызывает evicted, поэтому без c.mu
	for key := range keys {
		c.store.Delete(key)
	}

	return nil
}

// evicted убирает протухшую запись из индекса тега
func (c *MemoryCache) evicted(key string, v interface{}) {
	tv, ok := v.(taggedValue)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	keys, ok := c.tags[tv.tag]
	if !ok {
		return
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(c.tags, tv.tag)
	}
}
