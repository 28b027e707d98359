package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"scholarships/internal/docstore"
	"scholarships/internal/domain"
)

// ScholarshipRepository is a MongoDB implementation of domain.ScholarshipRepository
type ScholarshipRepository struct {
	store  docstore.Storage[*domain.Record]
	logger *zap.Logger
}

// NewScholarshipRepository creates a repository backed by store
func NewScholarshipRepository(store docstore.Storage[*domain.Record], logger *zap.Logger) *ScholarshipRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScholarshipRepository{
		store:  store,
		logger: logger,
	}
}

// List returns up to limit scholarships ordered by id
func (r *ScholarshipRepository) List(ctx context.Context, limit int) ([]*domain.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	records, err := r.store.FindMany(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list scholarships: %w", err)
	}
	return records, nil
}

// Get retrieves a scholarship by ID
func (r *ScholarshipRepository) Get(ctx context.Context, id string) (*domain.Record, error) {
	rec, err := r.store.FindOne(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return rec, nil
}

// Create stores a new scholarship
func (r *ScholarshipRepository) Create(ctx context.Context, rec *domain.Record) (*domain.Record, error) {
	stored, err := r.store.FindOneAndUpsert(ctx, rec)
	if err != nil {
		return nil, translate(err)
	}
	if stored.Version != 1 {
		r.logger.Warn("Create matched an existing scholarship", zap.String("id", rec.ID))
	}
	return stored, nil
}

// Replace stores rec in place of the current scholarship, creating it if absent
func (r *ScholarshipRepository) Replace(ctx context.Context, rec *domain.Record, expectedVersion int64) (*domain.Record, error) {
	stored, err := r.store.FindOneAndReplace(ctx, rec, versionOpts(expectedVersion)...)
	if err != nil {
		return nil, translate(err)
	}
	return stored, nil
}

// Update edits a scholarship with optimistic concurrency control
func (r *ScholarshipRepository) Update(ctx context.Context, id string, expectedVersion int64, fn domain.EditFunc) (*domain.Record, error) {
	updated, diff, err := r.store.FindOneAndUpdate(ctx, id, docstore.EditFunc[*domain.Record](fn), versionOpts(expectedVersion)...)
	if err != nil {
		return nil, translate(err)
	}

	if diff != nil && diff.HasChanges {
		r.logger.Debug("Scholarship updated",
			zap.String("id", id),
			zap.Int64("version", updated.Version),
			zap.ByteString("mergePatch", diff.MergePatch))
	}
	return updated, nil
}

// Delete removes a scholarship and returns it
func (r *ScholarshipRepository) Delete(ctx context.Context, id string, expectedVersion int64) (*domain.Record, error) {
	deleted, err := r.store.DeleteOne(ctx, id, versionOpts(expectedVersion)...)
	if err != nil {
		return nil, translate(err)
	}
	return deleted, nil
}

func versionOpts(expectedVersion int64) []docstore.EditOption {
	if expectedVersion == 0 {
		return nil
	}
	return []docstore.EditOption{docstore.WithExpectedVersion(expectedVersion)}
}

// translate maps storage errors onto domain errors and leaves the rest,
// including errors returned by edit functions, untouched.
func translate(err error) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, docstore.ErrVersionMismatch):
		return fmt.Errorf("%w: %v", domain.ErrVersionMismatch, err)
	default:
		return err
	}
}
