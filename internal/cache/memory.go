package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a process-local Cache used when no Redis address is
// configured. Nothing survives a restart.
type MemoryCache struct {
	mu     sync.Mutex
	now    func() time.Time
	values map[string]memoryEntry
	lists  map[string][][]byte
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		now:    time.Now,
		values: make(map[string]memoryEntry),
		lists:  make(map[string][][]byte),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.values[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.values, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.values[key] = e
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	delete(c.lists, key)
	return nil
}

func (c *MemoryCache) Append(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[key] = append(c.lists[key], append([]byte(nil), value...))
	return nil
}

func (c *MemoryCache) List(_ context.Context, key string) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.lists[key]...), nil
}

func (c *MemoryCache) TakeList(_ context.Context, key string) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.lists[key]
	delete(c.lists, key)
	return items, nil
}

func (c *MemoryCache) Ping(context.Context) error {
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}
