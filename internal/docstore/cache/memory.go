package cache

import (
	"context"
	"sync"
	"time"
)

// memoryItem is an entry in the memory cache
type memoryItem[T any] struct {
	data       T
	expiresAt  time.Time
	lastAccess time.Time
}

// MemoryCache implements the Cache interface using in-memory storage
type MemoryCache[T any] struct {
	items   map[string]memoryItem[T]
	mu      sync.Mutex
	options *CacheOptions
	now     func() time.Time
	stop    chan struct{}
	closed  bool
}

// NewMemoryCache creates a new MemoryCache and starts its expiry sweeper,
// which runs until Close.
func NewMemoryCache[T any](options *CacheOptions) *MemoryCache[T] {
	if options == nil {
		options = DefaultCacheOptions()
	}

	c := &MemoryCache[T]{
		items:   make(map[string]memoryItem[T]),
		options: options,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	go c.cleanup(time.Minute)

	return c
}

// Get retrieves a document from the cache
func (c *MemoryCache[T]) Get(ctx context.Context, key string) (T, error) {
	var empty T

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return empty, ErrCacheClosed
	}

	item, ok := c.items[key]
	if !ok {
		return empty, ErrCacheMiss
	}

	now := c.now()
	if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
		delete(c.items, key)
		return empty, ErrCacheMiss
	}

	item.lastAccess = now
	c.items[key] = item

	return item.data, nil
}

// Set stores a document in the cache with an optional TTL
func (c *MemoryCache[T]) Set(ctx context.Context, key string, data T, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.options.DefaultTTL
	}

	now := c.now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}

	if _, exists := c.items[key]; !exists && c.options.MaxItems > 0 && len(c.items) >= c.options.MaxItems {
		c.evictOldest()
	}

	c.items[key] = memoryItem[T]{
		data:       data,
		expiresAt:  expiresAt,
		lastAccess: now,
	}
	return nil
}

// evictOldest removes the least recently accessed item. c.mu must be held.
func (c *MemoryCache[T]) evictOldest() {
	var (
		oldestKey  string
		oldestTime time.Time
		first      = true
	)

	for k, item := range c.items {
		if first || item.lastAccess.Before(oldestTime) {
			oldestKey = k
			oldestTime = item.lastAccess
			first = false
		}
	}

	if !first {
		delete(c.items, oldestKey)
	}
}

// Delete removes a document from the cache
func (c *MemoryCache[T]) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	return nil
}

// Clear removes all documents from the cache
func (c *MemoryCache[T]) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]memoryItem[T])
	return nil
}

// Len returns the number of stored items, expired or not.
func (c *MemoryCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Close stops the sweeper and drops all items
func (c *MemoryCache[T]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stop)
	c.items = make(map[string]memoryItem[T])
	return nil
}

// cleanup periodically removes expired items from the cache
func (c *MemoryCache[T]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *MemoryCache[T]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.items {
		if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}
}
