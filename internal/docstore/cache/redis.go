package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
)

// RedisCache implements the Cache interface on Redis. Values are stored as
// BSON, so T must round-trip through bson.Marshal.
type RedisCache[T any] struct {
	client  *redis.Client
	options *CacheOptions
	prefix  string
}

// RedisCacheOptions represents options for RedisCache
type RedisCacheOptions struct {
	CacheOptions

	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// DefaultRedisCacheOptions returns the default RedisCache options
func DefaultRedisCacheOptions() *RedisCacheOptions {
	return &RedisCacheOptions{
		CacheOptions: *DefaultCacheOptions(),
		Addr:         "localhost:6379",
		KeyPrefix:    "scholarships:",
	}
}

// NewRedisCache connects to Redis and verifies the connection with a ping
func NewRedisCache[T any](options *RedisCacheOptions) (*RedisCache[T], error) {
	if options == nil {
		options = DefaultRedisCacheOptions()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     options.Addr,
		Password: options.Password,
		DB:       options.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache[T]{
		client:  client,
		options: &options.CacheOptions,
		prefix:  options.KeyPrefix,
	}, nil
}

// Get retrieves a document from Redis
func (c *RedisCache[T]) Get(ctx context.Context, key string) (T, error) {
	var result T

	data, err := c.client.Get(ctx, c.getKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return result, ErrCacheMiss
		}
		return result, fmt.Errorf("failed to get from Redis: %w", err)
	}

	if err := bson.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return result, nil
}

// Set stores a document in Redis
func (c *RedisCache[T]) Set(ctx context.Context, key string, data T, ttl time.Duration) error {
	bytes, err := bson.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if ttl <= 0 {
		ttl = c.options.DefaultTTL
	}

	if err := c.client.Set(ctx, c.getKey(key), bytes, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in Redis: %w", err)
	}

	return nil
}

// Delete removes a document from Redis
func (c *RedisCache[T]) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.getKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete from Redis: %w", err)
	}

	return nil
}

// Clear removes every key under the cache prefix
func (c *RedisCache[T]) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys in Redis: %w", err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete keys from Redis: %w", err)
		}
	}

	return nil
}

// Close closes the Redis client
func (c *RedisCache[T]) Close() error {
	return c.client.Close()
}

func (c *RedisCache[T]) getKey(key string) string {
	return c.prefix + key
}
