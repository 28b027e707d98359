package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time forward without sleeping
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestMemoryCache(options *CacheOptions) (*MemoryCache[*TestDocument], *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCache[*TestDocument](options)
	c.now = clock.now
	return c, clock
}

func TestDefaultCacheOptions(t *testing.T) {
	options := DefaultCacheOptions()

	assert.Equal(t, time.Minute*10, options.DefaultTTL)
	assert.Equal(t, 10000, options.MaxItems)
}

// TestMemoryCacheBasicOperations tests basic CRUD operations on the memory cache
func TestMemoryCacheBasicOperations(t *testing.T) {
	cache, _ := newTestMemoryCache(nil)
	defer cache.Close()

	ctx := context.Background()
	doc := &TestDocument{ID: "1", Name: "Test Document", Age: 30}

	err := cache.Set(ctx, doc.ID, doc, 0)
	assert.NoError(t, err, "Set should not return an error")

	retrievedDoc, err := cache.Get(ctx, doc.ID)
	require.NoError(t, err, "Get should not return an error")
	assert.Equal(t, doc, retrievedDoc)

	err = cache.Delete(ctx, doc.ID)
	assert.NoError(t, err, "Delete should not return an error")

	_, err = cache.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrCacheMiss, "Get after Delete should miss")

	require.NoError(t, cache.Set(ctx, doc.ID, doc, 0))
	require.NoError(t, cache.Clear(ctx))
	_, err = cache.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrCacheMiss, "Get after Clear should miss")
}

// TestMemoryCacheTTL tests the TTL functionality of the memory cache
func TestMemoryCacheTTL(t *testing.T) {
	options := DefaultCacheOptions()
	options.DefaultTTL = time.Minute
	cache, clock := newTestMemoryCache(options)
	defer cache.Close()

	ctx := context.Background()
	doc := &TestDocument{ID: "1", Name: "Test Document"}

	require.NoError(t, cache.Set(ctx, "short", doc, 100*time.Millisecond))
	require.NoError(t, cache.Set(ctx, "default", doc, 0))

	_, err := cache.Get(ctx, "short")
	assert.NoError(t, err, "Get immediately after Set should hit")

	clock.advance(200 * time.Millisecond)
	_, err = cache.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss, "Get after TTL expiration should miss")

	_, err = cache.Get(ctx, "default")
	assert.NoError(t, err, "the default TTL has not elapsed yet")

	clock.advance(time.Minute)
	cache.removeExpired()
	assert.Equal(t, 0, cache.Len(), "the sweeper should drop expired items")
}

// TestMemoryCacheMaxItems tests least recently accessed eviction
func TestMemoryCacheMaxItems(t *testing.T) {
	options := DefaultCacheOptions()
	options.MaxItems = 3
	cache, clock := newTestMemoryCache(options)
	defer cache.Close()

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, cache.Set(ctx, id, &TestDocument{ID: id}, 0))
		clock.advance(time.Second)
	}

	// touch "a" so that "b" becomes the oldest
	_, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	clock.advance(time.Second)

	require.NoError(t, cache.Set(ctx, "d", &TestDocument{ID: "d"}, 0))
	assert.Equal(t, 3, cache.Len())

	_, err = cache.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss, "b should have been evicted")
	for _, id := range []string{"a", "c", "d"} {
		_, err := cache.Get(ctx, id)
		assert.NoError(t, err, "%s should still be cached", id)
	}

	// overwriting an existing key never evicts
	require.NoError(t, cache.Set(ctx, "a", &TestDocument{ID: "a", Age: 1}, 0))
	assert.Equal(t, 3, cache.Len())
}

func TestMemoryCacheClose(t *testing.T) {
	cache, _ := newTestMemoryCache(nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "1", &TestDocument{ID: "1"}, 0))
	require.NoError(t, cache.Close())
	require.NoError(t, cache.Close(), "Close should be idempotent")

	_, err := cache.Get(ctx, "1")
	assert.ErrorIs(t, err, ErrCacheClosed)
	assert.ErrorIs(t, cache.Set(ctx, "1", &TestDocument{ID: "1"}, 0), ErrCacheClosed)
}

func TestNopCache(t *testing.T) {
	var c Cache[*TestDocument] = NewNopCache[*TestDocument]()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "1", &TestDocument{ID: "1"}, 0))
	_, err := c.Get(ctx, "1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
