package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"scholarships/internal/domain"
	"scholarships/pkg/jsonpatch"
)

// ScholarshipRepository is an in-memory implementation of domain.ScholarshipRepository.
// Records are copied on the way in and out, and versioned like the MongoDB
// repository.
type ScholarshipRepository struct {
	records map[string]*domain.Record
	mu      sync.RWMutex
}

// NewScholarshipRepository creates a new in-memory scholarship repository
func NewScholarshipRepository() *ScholarshipRepository {
	return &ScholarshipRepository{
		records: make(map[string]*domain.Record),
	}
}

// List returns up to limit scholarships ordered by id
func (r *ScholarshipRepository) List(ctx context.Context, limit int) ([]*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	records := make([]*domain.Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, r.records[id].Copy())
	}
	return records, nil
}

// Get retrieves a scholarship by ID
func (r *ScholarshipRepository) Get(ctx context.Context, id string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return rec.Copy(), nil
}

// Create stores a new scholarship. An existing record with the same id is
// returned unchanged.
func (r *ScholarshipRepository) Create(ctx context.Context, rec *domain.Record) (*domain.Record, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: id is required", domain.ErrInvalidDocument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.records[rec.ID]; exists {
		return existing.Copy(), nil
	}

	stored := rec.Copy()
	stored.Version = 1
	r.records[stored.ID] = stored
	return stored.Copy(), nil
}

// Replace stores rec in place of the current scholarship, creating it if absent
func (r *ScholarshipRepository) Replace(ctx context.Context, rec *domain.Record, expectedVersion int64) (*domain.Record, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: id is required", domain.ErrInvalidDocument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var current int64
	if existing, exists := r.records[rec.ID]; exists {
		current = existing.Version
	}
	if err := checkVersion(rec.ID, expectedVersion, current); err != nil {
		return nil, err
	}

	stored := rec.Copy()
	stored.Version = current + 1
	r.records[stored.ID] = stored
	return stored.Copy(), nil
}

// Update edits a scholarship under the repository lock
func (r *ScholarshipRepository) Update(ctx context.Context, id string, expectedVersion int64, fn domain.EditFunc) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.records[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	if err := checkVersion(id, expectedVersion, existing.Version); err != nil {
		return nil, err
	}

	updated, err := fn(existing.Copy())
	if err != nil {
		return nil, fmt.Errorf("edit function failed: %w", err)
	}
	if updated.ID != id {
		return nil, fmt.Errorf("edit function changed the document id from %q to %q", id, updated.ID)
	}

	// Nothing to write
	if jsonpatch.Equal(existing.Body, updated.Body) {
		return existing.Copy(), nil
	}

	stored := updated.Copy()
	stored.Version = existing.Version + 1
	r.records[id] = stored
	return stored.Copy(), nil
}

// Delete removes a scholarship and returns it
func (r *ScholarshipRepository) Delete(ctx context.Context, id string, expectedVersion int64) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.records[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	if err := checkVersion(id, expectedVersion, existing.Version); err != nil {
		return nil, err
	}

	delete(r.records, id)
	return existing, nil
}

func checkVersion(id string, expected, current int64) error {
	if expected != 0 && expected != current {
		return fmt.Errorf("%w: scholarship %s is at version %d, expected %d",
			domain.ErrVersionMismatch, id, current, expected)
	}
	return nil
}
