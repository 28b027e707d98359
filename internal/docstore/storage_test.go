package docstore

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"scholarships/internal/docstore/cache"
	"scholarships/internal/domain"
	"scholarships/pkg/jsonpatch"
)

// TestDocument is a test document type that implements Document
type TestDocument struct {
	ID    string `bson:"_id" json:"id"`
	Name  string `bson:"name" json:"name"`
	Value int    `bson:"value" json:"value"`
	Rev   int64  `bson:"_rev" json:"-"`
}

func (d *TestDocument) Copy() *TestDocument {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

func (d *TestDocument) Key() string         { return d.ID }
func (d *TestDocument) Revision() int64     { return d.Rev }
func (d *TestDocument) SetRevision(v int64) { d.Rev = v }

// setupTestDB connects to a local MongoDB and creates a unique collection,
// skipping the test when MongoDB is not reachable
func setupTestDB(t *testing.T) *mongo.Collection {
	t.Helper()

	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(2*time.Second))
	if err != nil {
		t.Skipf("Skipping MongoDB test: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		t.Skipf("Skipping MongoDB test: %v", err)
	}

	collection := client.Database("test_db").Collection("test_" + uuid.NewString())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := collection.Drop(ctx); err != nil {
			t.Logf("Failed to drop collection: %v", err)
		}
		if err := client.Disconnect(ctx); err != nil {
			t.Logf("Failed to disconnect from MongoDB: %v", err)
		}
	})

	return collection
}

// setupTestStorage sets up a test storage with memory cache
func setupTestStorage(t *testing.T) *StorageImpl[*TestDocument] {
	t.Helper()

	collection := setupTestDB(t)
	memCache := cache.NewMemoryCache[*TestDocument](nil)

	storage, err := NewStorage[*TestDocument](collection, memCache, nil)
	require.NoError(t, err, "Failed to create storage")

	t.Cleanup(func() {
		storage.Close()
		memCache.Close()
	})

	return storage
}

func insertTestDocument(t *testing.T, collection *mongo.Collection, name string) *TestDocument {
	t.Helper()

	doc := &TestDocument{ID: uuid.NewString(), Name: name, Value: 42, Rev: 1}
	_, err := collection.InsertOne(context.Background(), doc)
	require.NoError(t, err, "Failed to insert test document")
	return doc
}

func TestNewStorageValidatesOptions(t *testing.T) {
	coll := &mongo.Collection{}

	_, err := NewStorage[*TestDocument](coll, cache.NewNopCache[*TestDocument](), &Options{})
	assert.ErrorIs(t, err, ErrMissingVersionField)

	_, err = NewStorage[*TestDocument](coll, nil, nil)
	assert.Error(t, err, "a cache is required")
}

func TestNewEditOptions(t *testing.T) {
	opts := NewEditOptions()
	assert.Equal(t, 0, opts.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, opts.RetryDelay)
	assert.Equal(t, 100*time.Millisecond, opts.MaxRetryDelay)
	assert.Equal(t, 0.1, opts.RetryJitter)
	assert.Equal(t, 10*time.Second, opts.Timeout)

	opts = NewEditOptions(WithMaxRetries(3), WithExpectedVersion(7), WithTimeout(time.Second))
	assert.Equal(t, 3, opts.MaxRetries)
	assert.Equal(t, int64(7), opts.ExpectedVersion)
	assert.Equal(t, time.Second, opts.Timeout)
}

func TestGenerateDiff(t *testing.T) {
	oldDoc := &TestDocument{ID: "1", Name: "a", Value: 1}

	diff, err := generateDiff(oldDoc, oldDoc.Copy())
	require.NoError(t, err)
	assert.False(t, diff.HasChanges)

	newDoc := oldDoc.Copy()
	newDoc.Value = 2
	newDoc.Rev = 9
	diff, err = generateDiff(oldDoc, newDoc)
	require.NoError(t, err)
	assert.True(t, diff.HasChanges)
	assert.JSONEq(t, `{"value":2}`, string(diff.MergePatch))
}

func newScholarship(t *testing.T, body string) *domain.Record {
	t.Helper()
	obj, ok := jsonpatch.MustParse(body).(*jsonpatch.Object)
	require.True(t, ok)
	return domain.NewRecord("x", obj)
}

func TestGenerateDiffKeepsNumbersExact(t *testing.T) {
	tests := map[string][2]string{
		"integer above 2^53":    {`{"n":9007199254740993}`, `{"n":9007199254740992}`},
		"long decimal fraction": {`{"n":0.10000000000000000001}`, `{"n":0.1}`},
	}

	for name, bodies := range tests {
		t.Run(name, func(t *testing.T) {
			oldDoc := newScholarship(t, bodies[0])
			newDoc := newScholarship(t, bodies[1])

			diff, err := generateDiff(oldDoc, newDoc)
			require.NoError(t, err)
			assert.True(t, diff.HasChanges)

			diff, err = generateDiff(oldDoc, oldDoc.Copy())
			require.NoError(t, err)
			assert.False(t, diff.HasChanges)
		})
	}
}

func TestBackoffDeadlineIsVersionMismatch(t *testing.T) {
	s := &StorageImpl[*TestDocument]{
		cache:   cache.NewNopCache[*TestDocument](),
		options: DefaultOptions(),
		logger:  zap.NewNop(),
	}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	r := newRetrier(NewEditOptions(WithRetryDelay(time.Hour), WithMaxRetryDelay(time.Hour)))
	err := s.backoff(ctx, r, "1")
	assert.ErrorIs(t, err, ErrVersionMismatch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, r.attempts)
}

func TestContended(t *testing.T) {
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	cause := errors.New("failed to update document: context deadline exceeded")

	r := newRetrier(NewEditOptions())
	assert.NotErrorIs(t, contended(expired, r, cause), ErrVersionMismatch, "no conflict seen yet")

	r.attempts = 2
	err := contended(expired, r, cause)
	assert.ErrorIs(t, err, ErrVersionMismatch)
	assert.ErrorIs(t, err, cause)

	assert.Same(t, cause, contended(context.Background(), r, cause), "deadline not reached")
}

func TestVersionErrorIsMismatch(t *testing.T) {
	err := newVersionError("1", 2, 3)
	assert.True(t, errors.Is(err, ErrVersionMismatch))
	assert.Contains(t, err.Error(), "expected=2")
}

func TestFindOne(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	doc := insertTestDocument(t, storage.Collection(), "Test Document")

	result, err := storage.FindOne(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, result)

	// served from the cache even after the database copy is gone
	_, err = storage.Collection().DeleteOne(ctx, bson.M{"_id": doc.ID})
	require.NoError(t, err)
	cached, err := storage.FindOne(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Name, cached.Name)

	_, err = storage.FindOne(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindMany(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		insertTestDocument(t, storage.Collection(), name)
	}

	docs, err := storage.FindMany(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}).SetLimit(2))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Name)
	assert.Equal(t, "b", docs[1].Name)

	docs, err = storage.FindMany(ctx, bson.M{"name": "zzz"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestFindOneAndUpsert(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	doc := &TestDocument{ID: uuid.NewString(), Name: "first"}
	created, err := storage.FindOneAndUpsert(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Rev)
	assert.Equal(t, "first", created.Name)

	again, err := storage.FindOneAndUpsert(ctx, &TestDocument{ID: doc.ID, Name: "second"})
	require.NoError(t, err)
	assert.Equal(t, "first", again.Name, "an existing document is returned unchanged")
}

func TestFindOneAndReplace(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	id := uuid.NewString()

	created, err := storage.FindOneAndReplace(ctx, &TestDocument{ID: id, Name: "v1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Rev)

	replaced, err := storage.FindOneAndReplace(ctx, &TestDocument{ID: id, Name: "v2"}, WithExpectedVersion(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), replaced.Rev)

	_, err = storage.FindOneAndReplace(ctx, &TestDocument{ID: id, Name: "v3"}, WithExpectedVersion(1))
	assert.ErrorIs(t, err, ErrVersionMismatch)

	_, err = storage.FindOneAndReplace(ctx, &TestDocument{ID: uuid.NewString()}, WithExpectedVersion(1))
	assert.ErrorIs(t, err, ErrVersionMismatch, "If-Match against a missing document fails")

	stored, err := storage.load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "v2", stored.Name)
}

func TestFindOneAndUpdate(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	doc := insertTestDocument(t, storage.Collection(), "before")

	updated, diff, err := storage.FindOneAndUpdate(ctx, doc.ID, func(d *TestDocument) (*TestDocument, error) {
		d.Name = "after"
		return d, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Name)
	assert.Equal(t, int64(2), updated.Rev)
	assert.True(t, diff.HasChanges)
	assert.JSONEq(t, `{"name":"after"}`, string(diff.MergePatch))

	// no-op edits do not bump the version
	same, diff, err := storage.FindOneAndUpdate(ctx, doc.ID, func(d *TestDocument) (*TestDocument, error) {
		return d, nil
	})
	require.NoError(t, err)
	assert.False(t, diff.HasChanges)
	assert.Equal(t, int64(2), same.Rev)

	abort := errors.New("abort")
	_, _, err = storage.FindOneAndUpdate(ctx, doc.ID, func(d *TestDocument) (*TestDocument, error) {
		return nil, abort
	})
	assert.ErrorIs(t, err, abort)

	_, _, err = storage.FindOneAndUpdate(ctx, doc.ID, func(d *TestDocument) (*TestDocument, error) {
		d.Value++
		return d, nil
	}, WithExpectedVersion(1))
	assert.ErrorIs(t, err, ErrVersionMismatch)

	_, _, err = storage.FindOneAndUpdate(ctx, "missing", func(d *TestDocument) (*TestDocument, error) {
		return d, nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindOneAndUpdateConcurrent(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	doc := insertTestDocument(t, storage.Collection(), "counter")
	_, err := storage.Collection().UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": bson.M{"value": 0}})
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := storage.FindOneAndUpdate(ctx, doc.ID, func(d *TestDocument) (*TestDocument, error) {
				d.Value++
				return d, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := storage.load(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, final.Value, "every increment must survive")
	assert.Equal(t, int64(1+workers), final.Rev)
}

func TestDeleteOne(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	doc := insertTestDocument(t, storage.Collection(), "doomed")

	_, err := storage.DeleteOne(ctx, doc.ID, WithExpectedVersion(5))
	assert.ErrorIs(t, err, ErrVersionMismatch)

	deleted, err := storage.DeleteOne(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, deleted)

	_, err = storage.FindOne(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = storage.DeleteOne(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClosedStorage(t *testing.T) {
	storage := setupTestStorage(t)
	require.NoError(t, storage.Close())

	_, err := storage.FindOne(context.Background(), "1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFindOneAndUpdateKeepsExactNumbers(t *testing.T) {
	collection := setupTestDB(t)
	memCache := cache.NewMemoryCache[*domain.Record](nil)
	storage, err := NewStorage[*domain.Record](collection, memCache, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		storage.Close()
		memCache.Close()
	})
	ctx := context.Background()

	_, err = storage.FindOneAndUpsert(ctx, newScholarship(t, `{"name":"n","n":9007199254740993}`))
	require.NoError(t, err)

	updated, diff, err := storage.FindOneAndUpdate(ctx, "x", func(rec *domain.Record) (*domain.Record, error) {
		rec.Body.Set("n", jsonpatch.Number("9007199254740992"))
		return rec, nil
	})
	require.NoError(t, err)
	assert.True(t, diff.HasChanges)
	assert.Equal(t, int64(2), updated.Version)

	stored, err := storage.load(ctx, "x")
	require.NoError(t, err)
	n, _ := stored.Body.Get("n")
	assert.True(t, jsonpatch.Equal(jsonpatch.Number("9007199254740992"), n))
}

func TestExpectedVersionRereadsStaleCache(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	created, err := storage.FindOneAndReplace(ctx, &TestDocument{ID: uuid.NewString(), Name: "v1"})
	require.NoError(t, err)

	// another instance writes version 2 behind this cache
	_, err = storage.Collection().UpdateOne(ctx, bson.M{"_id": created.ID},
		bson.M{"$set": bson.M{"name": "v2", "_rev": 2}})
	require.NoError(t, err)

	updated, _, err := storage.FindOneAndUpdate(ctx, created.ID, func(d *TestDocument) (*TestDocument, error) {
		d.Name = "v3"
		return d, nil
	}, WithExpectedVersion(2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.Rev)

	_, err = storage.Collection().UpdateOne(ctx, bson.M{"_id": created.ID},
		bson.M{"$set": bson.M{"name": "v4", "_rev": 4}})
	require.NoError(t, err)

	replaced, err := storage.FindOneAndReplace(ctx, &TestDocument{ID: created.ID, Name: "v5"}, WithExpectedVersion(4))
	require.NoError(t, err)
	assert.Equal(t, int64(5), replaced.Rev)
}
