// Package docstore provides MongoDB document storage with optimistic
// concurrency control and a read-through cache.
//
// Every stored document carries a version field. Updates read the current
// document, apply an edit to a copy and write it back only if the stored
// version is still the one that was read; otherwise the update is retried with
// jittered exponential backoff.
//
// Basic usage example:
//
//	client, _ := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://localhost:27017"))
//	collection := client.Database("UndocuGuide").Collection("Scholarships")
//
//	memCache := cache.NewMemoryCache[*domain.Record](nil)
//	store, _ := docstore.NewStorage[*domain.Record](collection, memCache, nil)
//
//	rec, _ := store.FindOne(ctx, id)
package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Document is implemented by types that can be stored. T is normally a
// pointer to the implementing type.
//
// Copy must return a deep copy that shares no mutable state with the
// original; the store edits copies and compares them with the stored value.
type Document[T any] interface {
	Copy() T
	// Key returns the document's _id.
	Key() string
	// Revision returns the value of the version field.
	Revision() int64
	SetRevision(v int64)
}

// EditFunc modifies a copy of the stored document and returns the document to
// write. Returning an error aborts the update without writing.
type EditFunc[T Document[T]] func(doc T) (T, error)

// Diff describes what an update changed.
type Diff struct {
	HasChanges bool `json:"hasChanges"`

	// MergePatch is the RFC 7396 merge patch from the old to the new document.
	MergePatch []byte `json:"mergePatch,omitempty"`
}

// Storage is the document store interface.
type Storage[T Document[T]] interface {
	// FindOne retrieves a document by id, consulting the cache first.
	// Returns ErrNotFound if the document does not exist.
	FindOne(ctx context.Context, id string, opts ...*options.FindOneOptions) (T, error)

	// FindMany retrieves the documents matching filter.
	FindMany(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]T, error)

	// FindOneAndUpsert creates data if no document with its id exists and
	// returns the stored document either way.
	FindOneAndUpsert(ctx context.Context, data T) (T, error)

	// FindOneAndReplace writes data in place of the stored document, creating
	// it when absent. With WithExpectedVersion the write only happens if the
	// stored version matches; otherwise ErrVersionMismatch is returned.
	FindOneAndReplace(ctx context.Context, data T, opts ...EditOption) (T, error)

	// FindOneAndUpdate edits a document with optimistic concurrency control.
	//
	// Returns:
	//   - The updated document and a diff of the change
	//   - ErrNotFound if the document does not exist
	//   - ErrVersionMismatch if WithExpectedVersion was given and did not match
	//   - The edit function's error, wrapped, if it failed
	FindOneAndUpdate(ctx context.Context, id string, editFn EditFunc[T], opts ...EditOption) (T, *Diff, error)

	// DeleteOne deletes a document and returns it.
	// Returns ErrNotFound if the document does not exist.
	DeleteOne(ctx context.Context, id string, opts ...EditOption) (T, error)

	// Collection returns the underlying MongoDB collection.
	Collection() *mongo.Collection

	// Close releases the storage. The collection and cache are owned by the
	// caller and are not closed.
	Close() error
}
