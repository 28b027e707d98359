package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/bson"
)

// BadgerCache implements the Cache interface on an embedded BadgerDB. Values
// are stored as BSON and expire through Badger's entry TTL.
type BadgerCache[T any] struct {
	db      *badger.DB
	options *CacheOptions
	stop    chan struct{}
}

// NewBadgerCache opens a BadgerDB at dbPath. An empty path keeps the database
// in memory.
func NewBadgerCache[T any](dbPath string, options *CacheOptions) (*BadgerCache[T], error) {
	if options == nil {
		options = DefaultCacheOptions()
	}

	opts := badger.DefaultOptions(dbPath)
	if dbPath == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	c := &BadgerCache[T]{
		db:      db,
		options: options,
		stop:    make(chan struct{}),
	}

	// value log GC is not supported in memory
	if dbPath != "" {
		go c.runGC(5 * time.Minute)
	}

	return c, nil
}

// Get retrieves a document from BadgerDB
func (c *BadgerCache[T]) Get(ctx context.Context, key string) (T, error) {
	var result T

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return bson.Unmarshal(val, &result)
		})
	})

	if err != nil {
		var empty T
		if errors.Is(err, badger.ErrKeyNotFound) {
			return empty, ErrCacheMiss
		}
		if errors.Is(err, badger.ErrDBClosed) {
			return empty, ErrCacheClosed
		}
		return empty, fmt.Errorf("failed to get from cache: %w", err)
	}

	return result, nil
}

// Set stores a document in BadgerDB
func (c *BadgerCache[T]) Set(ctx context.Context, key string, data T, ttl time.Duration) error {
	value, err := bson.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if ttl <= 0 {
		ttl = c.options.DefaultTTL
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})

	if err != nil {
		return fmt.Errorf("failed to set in cache: %w", err)
	}

	return nil
}

// Delete removes a document from BadgerDB
func (c *BadgerCache[T]) Delete(ctx context.Context, key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})

	if err != nil {
		return fmt.Errorf("failed to delete from cache: %w", err)
	}

	return nil
}

// Clear drops every entry
func (c *BadgerCache[T]) Clear(ctx context.Context) error {
	return c.db.DropAll()
}

// Close stops the GC loop and closes the database
func (c *BadgerCache[T]) Close() error {
	select {
	case <-c.stop:
		return nil
	default:
		close(c.stop)
	}
	return c.db.Close()
}

func (c *BadgerCache[T]) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			// Run GC while at least half of a value log file can be reclaimed
			for c.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}
