// Package cache provides the read caches used by the document store.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss is returned when a key is not in the cache or has expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheClosed is returned when operating on a closed cache
	ErrCacheClosed = errors.New("cache is closed")
)

// Cache stores documents by key.
type Cache[T any] interface {
	// Get returns ErrCacheMiss when key is absent or expired.
	Get(ctx context.Context, key string) (T, error)

	// Set stores data under key. A ttl of zero uses the cache default.
	Set(ctx context.Context, key string, data T, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Clear(ctx context.Context) error

	Close() error
}

// CacheOptions represents options common to all caches
type CacheOptions struct {
	// DefaultTTL applies when Set is called with a zero ttl
	DefaultTTL time.Duration

	// MaxItems bounds the memory cache; the least recently accessed item is
	// evicted first. Zero means unbounded.
	MaxItems int
}

// DefaultCacheOptions returns the default cache options
func DefaultCacheOptions() *CacheOptions {
	return &CacheOptions{
		DefaultTTL: time.Minute * 10,
		MaxItems:   10000,
	}
}

// NopCache never stores anything. It is used when caching is disabled.
type NopCache[T any] struct{}

func NewNopCache[T any]() *NopCache[T] { return &NopCache[T]{} }

func (NopCache[T]) Get(ctx context.Context, key string) (T, error) {
	var empty T
	return empty, ErrCacheMiss
}

func (NopCache[T]) Set(ctx context.Context, key string, data T, ttl time.Duration) error { return nil }

func (NopCache[T]) Delete(ctx context.Context, key string) error { return nil }

func (NopCache[T]) Clear(ctx context.Context) error { return nil }

func (NopCache[T]) Close() error { return nil }
