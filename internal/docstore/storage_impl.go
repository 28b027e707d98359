package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"scholarships/internal/docstore/cache"
)

// StorageImpl implements the Storage interface
type StorageImpl[T Document[T]] struct {
	collection *mongo.Collection
	cache      cache.Cache[T]
	options    *Options
	logger     *zap.Logger
	closed     bool
	closeMu    sync.Mutex
}

// NewStorage creates a new storage instance
func NewStorage[T Document[T]](
	collection *mongo.Collection,
	cacheImpl cache.Cache[T],
	options *Options,
) (*StorageImpl[T], error) {
	if options == nil {
		options = DefaultOptions()
	}

	if options.VersionField == "" {
		return nil, ErrMissingVersionField
	}

	if cacheImpl == nil {
		return nil, fmt.Errorf("cache implementation is required")
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StorageImpl[T]{
		collection: collection,
		cache:      cacheImpl,
		options:    options,
		logger:     logger.With(zap.String("collection", collection.Name())),
	}, nil
}

// Collection returns the underlying MongoDB collection
func (s *StorageImpl[T]) Collection() *mongo.Collection {
	return s.collection
}

func (s *StorageImpl[T]) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

// FindOne retrieves a document by ID with optional MongoDB options
func (s *StorageImpl[T]) FindOne(
	ctx context.Context,
	id string,
	opts ...*options.FindOneOptions,
) (T, error) {
	var empty T

	if s.isClosed() {
		return empty, ErrClosed
	}

	// Try to get from cache first
	doc, err := s.cache.Get(ctx, id)
	if err == nil {
		return doc.Copy(), nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Cache read failed", zap.Error(err), zap.String("id", id))
	}

	result, err := s.load(ctx, id, opts...)
	if err != nil {
		return empty, err
	}

	s.cacheSet(ctx, result)
	return result, nil
}

// load reads a document from the database, bypassing the cache.
func (s *StorageImpl[T]) load(ctx context.Context, id string, opts ...*options.FindOneOptions) (T, error) {
	var result T

	findOpts := options.FindOne()
	if len(opts) > 0 {
		findOpts = opts[0]
	}

	err := s.collection.FindOne(ctx, bson.M{"_id": id}, findOpts).Decode(&result)
	if err != nil {
		var empty T
		if errors.Is(err, mongo.ErrNoDocuments) {
			return empty, ErrNotFound
		}
		return empty, fmt.Errorf("failed to get document: %w", err)
	}
	return result, nil
}

// FindMany retrieves documents using a query with optional MongoDB options
func (s *StorageImpl[T]) FindMany(
	ctx context.Context,
	filter interface{},
	opts ...*options.FindOptions,
) ([]T, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	findOpts := options.Find()
	if len(opts) > 0 {
		findOpts = opts[0]
	}

	cursor, err := s.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer cursor.Close(ctx)

	results := make([]T, 0)
	for cursor.Next(ctx) {
		var doc T
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		results = append(results, doc)

		if s.options.CacheQueryResults {
			s.cacheSet(ctx, doc)
		}
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return results, nil
}

// FindOneAndUpsert creates a new document or returns the existing one if it already exists.
func (s *StorageImpl[T]) FindOneAndUpsert(ctx context.Context, data T) (T, error) {
	var empty T

	if s.isClosed() {
		return empty, ErrClosed
	}

	id := data.Key()
	if id == "" {
		return empty, fmt.Errorf("document id is required")
	}

	doc := data.Copy()
	doc.SetRevision(1)

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	// $setOnInsert leaves an existing document untouched
	var result T
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$setOnInsert": doc}, opts).Decode(&result)
	if err != nil {
		return empty, fmt.Errorf("failed to create or get document: %w", err)
	}

	s.cacheSet(ctx, result)
	return result, nil
}

// FindOneAndReplace replaces a document, or creates it, with optimistic concurrency control
func (s *StorageImpl[T]) FindOneAndReplace(ctx context.Context, data T, opts ...EditOption) (T, error) {
	var empty T

	if s.isClosed() {
		return empty, ErrClosed
	}

	id := data.Key()
	if id == "" {
		return empty, fmt.Errorf("document id is required")
	}

	editOpts := NewEditOptions(opts...)
	timeoutCtx, cancel := context.WithTimeout(ctx, editOpts.Timeout)
	defer cancel()

	r := newRetrier(editOpts)
	for r.more() {
		current, err := s.current(timeoutCtx, id, editOpts.ExpectedVersion)
		if errors.Is(err, ErrNotFound) {
			if editOpts.ExpectedVersion != 0 {
				return empty, newVersionError(id, editOpts.ExpectedVersion, 0)
			}

			doc := data.Copy()
			doc.SetRevision(1)
			_, err := s.collection.InsertOne(timeoutCtx, doc)
			if err == nil {
				s.cacheSet(timeoutCtx, doc)
				return doc, nil
			}
			if !mongo.IsDuplicateKeyError(err) {
				return empty, contended(timeoutCtx, r, fmt.Errorf("failed to insert document: %w", err))
			}
			// created concurrently, replace it on the next attempt
			if err := s.backoff(timeoutCtx, r, id); err != nil {
				return empty, err
			}
			continue
		}
		if err != nil {
			return empty, contended(timeoutCtx, r, err)
		}

		currentVersion := current.Revision()
		if editOpts.ExpectedVersion != 0 && editOpts.ExpectedVersion != currentVersion {
			return empty, newVersionError(id, editOpts.ExpectedVersion, currentVersion)
		}

		doc := data.Copy()
		doc.SetRevision(currentVersion + 1)
		updated, err := s.replaceVersioned(timeoutCtx, id, currentVersion, doc)
		if err != nil {
			return empty, contended(timeoutCtx, r, err)
		}
		if updated {
			return doc, nil
		}

		if err := s.backoff(timeoutCtx, r, id); err != nil {
			return empty, err
		}
	}

	return empty, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, ErrVersionMismatch)
}

// FindOneAndUpdate edits a document with optimistic concurrency control using a function
func (s *StorageImpl[T]) FindOneAndUpdate(
	ctx context.Context,
	id string,
	editFn EditFunc[T],
	opts ...EditOption,
) (T, *Diff, error) {
	var empty T

	if s.isClosed() {
		return empty, nil, ErrClosed
	}

	editOpts := NewEditOptions(opts...)
	timeoutCtx, cancel := context.WithTimeout(ctx, editOpts.Timeout)
	defer cancel()

	r := newRetrier(editOpts)
	for r.more() {
		doc, err := s.current(timeoutCtx, id, editOpts.ExpectedVersion)
		if err != nil {
			return empty, nil, contended(timeoutCtx, r, err)
		}

		currentVersion := doc.Revision()
		if editOpts.ExpectedVersion != 0 && editOpts.ExpectedVersion != currentVersion {
			return empty, nil, newVersionError(id, editOpts.ExpectedVersion, currentVersion)
		}

		updatedDoc, err := editFn(doc.Copy())
		if err != nil {
			return empty, nil, fmt.Errorf("edit function failed: %w", err)
		}
		if updatedDoc.Key() != id {
			return empty, nil, fmt.Errorf("edit function changed the document id from %q to %q", id, updatedDoc.Key())
		}
		updatedDoc.SetRevision(currentVersion)

		diff, err := generateDiff(doc, updatedDoc)
		if err != nil {
			return empty, nil, fmt.Errorf("failed to generate diff: %w", err)
		}

		// Nothing to write
		if !diff.HasChanges {
			return doc, diff, nil
		}

		updatedDoc.SetRevision(currentVersion + 1)
		updated, err := s.replaceVersioned(timeoutCtx, id, currentVersion, updatedDoc)
		if err != nil {
			return empty, nil, contended(timeoutCtx, r, err)
		}
		if updated {
			return updatedDoc, diff, nil
		}

		s.logger.Debug("Version conflict, retrying",
			zap.String("id", id),
			zap.Int64("version", currentVersion),
			zap.Int("attempt", r.attempts+1))

		if err := s.backoff(timeoutCtx, r, id); err != nil {
			return empty, nil, err
		}
	}

	return empty, nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, ErrVersionMismatch)
}

// current returns the stored document. When the cached copy does not carry
// the expected version it is reread from the database, since another
// instance may have written it.
func (s *StorageImpl[T]) current(ctx context.Context, id string, expected int64) (T, error) {
	doc, err := s.FindOne(ctx, id)
	if err != nil || expected == 0 || doc.Revision() == expected {
		return doc, err
	}

	fresh, err := s.load(ctx, id)
	if err != nil {
		return fresh, err
	}
	s.cacheSet(ctx, fresh)
	return fresh, nil
}

// replaceVersioned writes doc if the stored version is still expected. It
// reports false when another writer got there first.
func (s *StorageImpl[T]) replaceVersioned(ctx context.Context, id string, expected int64, doc T) (bool, error) {
	result, err := s.collection.ReplaceOne(ctx, bson.M{
		"_id":                  id,
		s.options.VersionField: expected,
	}, doc)
	if err != nil {
		return false, fmt.Errorf("failed to update document: %w", err)
	}
	if result.MatchedCount == 0 {
		return false, nil
	}

	s.cacheSet(ctx, doc)
	return true, nil
}

// DeleteOne deletes a document and returns its last stored state
func (s *StorageImpl[T]) DeleteOne(ctx context.Context, id string, opts ...EditOption) (T, error) {
	var empty T

	if s.isClosed() {
		return empty, ErrClosed
	}

	editOpts := NewEditOptions(opts...)

	filter := bson.M{"_id": id}
	if editOpts.ExpectedVersion != 0 {
		filter[s.options.VersionField] = editOpts.ExpectedVersion
	}

	var result T
	err := s.collection.FindOneAndDelete(ctx, filter).Decode(&result)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return empty, fmt.Errorf("failed to delete document: %w", err)
	}

	if err := s.cache.Delete(ctx, id); err != nil {
		s.logger.Warn("Failed to delete document from cache", zap.Error(err), zap.String("id", id))
	}

	if err != nil {
		if editOpts.ExpectedVersion != 0 {
			if current, loadErr := s.load(ctx, id); loadErr == nil {
				return empty, newVersionError(id, editOpts.ExpectedVersion, current.Revision())
			}
		}
		return empty, ErrNotFound
	}

	return result, nil
}

// Close closes the storage
func (s *StorageImpl[T]) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	// The collection and cache were injected and are closed by their owner.
	s.closed = true
	return nil
}

func (s *StorageImpl[T]) cacheSet(ctx context.Context, doc T) {
	if err := s.cache.Set(ctx, doc.Key(), doc.Copy(), s.options.CacheTTL); err != nil {
		s.logger.Warn("Failed to cache document",
			zap.Error(err),
			zap.String("id", doc.Key()))
	}
}

type retrier struct {
	opts     *EditOptions
	delay    time.Duration
	attempts int
}

func newRetrier(opts *EditOptions) *retrier {
	return &retrier{opts: opts, delay: opts.RetryDelay}
}

func (r *retrier) more() bool {
	return r.opts.MaxRetries == 0 || r.attempts < r.opts.MaxRetries
}

// backoff waits before the next attempt and drops the cached copy of id so the
// next read sees the winner's write.
func (s *StorageImpl[T]) backoff(ctx context.Context, r *retrier, id string) error {
	r.attempts++

	jitter := float64(r.delay) * r.opts.RetryJitter * (rand.Float64()*2 - 1)
	delay := time.Duration(float64(r.delay) + jitter)

	// Exponential backoff with cap
	r.delay = time.Duration(math.Min(
		float64(r.opts.MaxRetryDelay),
		float64(r.delay)*2,
	))

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return fmt.Errorf("%w: operation timed out after %d attempts: %w", ErrVersionMismatch, r.attempts, ctx.Err())
	}

	if err := s.cache.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to invalidate cache for retry: %w", err)
	}
	return nil
}

// contended reports a failure that follows a lost version race and the
// expiry of the operation deadline as a version mismatch.
func contended(ctx context.Context, r *retrier, err error) error {
	if r.attempts == 0 || !errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, ErrVersionMismatch) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrVersionMismatch, err)
}

// generateDiff generates a diff between two documents. HasChanges compares
// the stored BSON form, which keeps numbers exact; the merge patch is
// informational only.
func generateDiff[T Document[T]](oldDoc, newDoc T) (*Diff, error) {
	changed, err := differs(oldDoc, newDoc)
	if err != nil {
		return nil, err
	}

	oldJSON, err := json.Marshal(oldDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal old document: %w", err)
	}

	newJSON, err := json.Marshal(newDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal new document: %w", err)
	}

	// Generate JSON Merge Patch (RFC 7396)
	mergePatch, err := jsonpatch.CreateMergePatch(oldJSON, newJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to create merge patch: %w", err)
	}

	return &Diff{
		HasChanges: changed,
		MergePatch: mergePatch,
	}, nil
}

// differs compares the BSON encodings of two documents, ignoring the version
// field.
func differs[T Document[T]](a, b T) (bool, error) {
	a, b = a.Copy(), b.Copy()
	a.SetRevision(0)
	b.SetRevision(0)

	oldBSON, err := bson.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("failed to encode old document: %w", err)
	}
	newBSON, err := bson.Marshal(b)
	if err != nil {
		return false, fmt.Errorf("failed to encode new document: %w", err)
	}
	return !bytes.Equal(oldBSON, newBSON), nil
}
