package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scholarships/internal/domain"
	"scholarships/internal/validate"
	"scholarships/pkg/jsonpatch"
	"scholarships/pkg/utils"
)

// SchemaValidator checks a document against a named schema
type SchemaValidator interface {
	Validate(schema string, doc jsonpatch.Value) error
}

// Config holds the use case settings
type Config struct {
	Clock        utils.Clock
	DefaultLimit int
	MaxLimit     int
}

// DefaultConfig returns the default use case settings
func DefaultConfig() Config {
	return Config{
		Clock:        utils.SystemClock,
		DefaultLimit: 10,
		MaxLimit:     100,
	}
}

// errNotApplied aborts a repository update when a test operation fails.
var errNotApplied = errors.New("patch not applied")

// ScholarshipUseCase implements domain.ScholarshipUseCase
type ScholarshipUseCase struct {
	repo      domain.ScholarshipRepository
	validator SchemaValidator
	config    Config
	logger    *zap.Logger
}

// NewScholarshipUseCase creates a new scholarship use case
func NewScholarshipUseCase(repo domain.ScholarshipRepository, validator SchemaValidator, config Config, logger *zap.Logger) *ScholarshipUseCase {
	defaults := DefaultConfig()
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = defaults.DefaultLimit
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = defaults.MaxLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ScholarshipUseCase{
		repo:      repo,
		validator: validator,
		config:    config,
		logger:    logger,
	}
}

// List returns up to limit scholarships. A non-positive limit selects the
// default and larger limits are capped.
func (uc *ScholarshipUseCase) List(ctx context.Context, limit int) ([]*domain.Record, error) {
	if limit <= 0 {
		limit = uc.config.DefaultLimit
	}
	if limit > uc.config.MaxLimit {
		limit = uc.config.MaxLimit
	}
	return uc.repo.List(ctx, limit)
}

// Get retrieves a scholarship by ID
func (uc *ScholarshipUseCase) Get(ctx context.Context, id string) (*domain.Record, error) {
	return uc.repo.Get(ctx, id)
}

// Create stores a new scholarship with a server assigned id and timestamps
func (uc *ScholarshipUseCase) Create(ctx context.Context, body jsonpatch.Value) (*domain.Record, error) {
	obj, err := asObject(body)
	if err != nil {
		return nil, err
	}
	if err := uc.validator.Validate(validate.CreateScholarship, obj); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidDocument, err)
	}

	rec := domain.NewRecord(uuid.NewString(), obj)
	now := jsonpatch.String(utils.Timestamp(uc.config.Clock()))
	rec.Body.Set(domain.FieldCreated, now)
	rec.Body.Set(domain.FieldLastUpdated, now)

	if err := uc.validator.Validate(validate.Scholarship, rec.Document()); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidDocument, err)
	}

	created, err := uc.repo.Create(ctx, rec)
	if err != nil {
		return nil, err
	}

	uc.logger.Info("Scholarship created", zap.String("id", created.ID))
	return created, nil
}

// Replace overwrites a scholarship, creating it when absent. The stored id is
// always the path id.
func (uc *ScholarshipUseCase) Replace(ctx context.Context, id string, body jsonpatch.Value, ifMatch int64) (*domain.Record, error) {
	obj, err := asObject(body)
	if err != nil {
		return nil, err
	}

	rec := domain.NewRecord(id, obj)
	rec.Body.Set(domain.FieldLastUpdated, jsonpatch.String(utils.Timestamp(uc.config.Clock())))

	if err := uc.validator.Validate(validate.Scholarship, rec.Document()); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidDocument, err)
	}

	return uc.repo.Replace(ctx, rec, ifMatch)
}

// Patch applies a JSON Patch document to a stored scholarship.
//
// Malformed patches, unresolvable paths and conflicts are returned as
// *jsonpatch.Error. A failed test operation is not an error: the result then
// holds the unchanged record with Applied set to false.
func (uc *ScholarshipUseCase) Patch(ctx context.Context, id string, patchBody []byte, ifMatch int64) (*domain.PatchResult, error) {
	patch, err := jsonpatch.DecodePatch(patchBody)
	if err != nil {
		// an unknown id wins over a malformed patch
		if _, getErr := uc.repo.Get(ctx, id); errors.Is(getErr, domain.ErrNotFound) {
			return nil, getErr
		}
		return nil, err
	}

	var (
		original *domain.Record
		failure  *jsonpatch.Error
	)

	updated, err := uc.repo.Update(ctx, id, ifMatch, func(rec *domain.Record) (*domain.Record, error) {
		original = rec.Copy()
		failure = nil

		result, err := patch.Apply(rec.Document())
		if err != nil {
			return nil, err
		}
		if result.Outcome == jsonpatch.NotApplied {
			failure = result.Failure
			return nil, errNotApplied
		}

		obj, ok := result.Document.(*jsonpatch.Object)
		if !ok {
			return nil, fmt.Errorf("%w: result is %s, not an object", domain.ErrInvalidResult, result.Document.Kind())
		}
		if name, ok := storageMember(obj); ok {
			return nil, fmt.Errorf("%w: member %q is reserved", domain.ErrInvalidResult, name)
		}

		next := domain.NewRecord(id, obj)
		next.Version = rec.Version
		if jsonpatch.Equal(next.Body, rec.Body) {
			return rec, nil
		}

		next.Body.Set(domain.FieldLastUpdated, jsonpatch.String(utils.Timestamp(uc.config.Clock())))
		if err := uc.validator.Validate(validate.Scholarship, next.Document()); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidResult, err)
		}
		return next, nil
	})

	switch {
	case errors.Is(err, errNotApplied):
		uc.logger.Debug("Patch not applied",
			zap.String("id", id),
			zap.NamedError("failure", failure))
		return &domain.PatchResult{Record: original, Applied: false, Failure: failure}, nil
	case err != nil:
		return nil, err
	}

	return &domain.PatchResult{Record: updated, Applied: true}, nil
}

// Delete removes a scholarship and returns it
func (uc *ScholarshipUseCase) Delete(ctx context.Context, id string, ifMatch int64) (*domain.Record, error) {
	deleted, err := uc.repo.Delete(ctx, id, ifMatch)
	if err != nil {
		return nil, err
	}

	uc.logger.Info("Scholarship deleted", zap.String("id", id))
	return deleted, nil
}

func asObject(body jsonpatch.Value) (*jsonpatch.Object, error) {
	obj, ok := body.(*jsonpatch.Object)
	if !ok || obj == nil {
		kind := "nothing"
		if body != nil {
			kind = body.Kind().String()
		}
		return nil, fmt.Errorf("%w: expected a JSON object, got %s", domain.ErrInvalidDocument, kind)
	}
	if name, ok := storageMember(obj); ok {
		return nil, fmt.Errorf("%w: member %q is reserved", domain.ErrInvalidDocument, name)
	}
	return obj, nil
}

// storageMember returns a member of obj that would collide with a field the
// store writes itself.
func storageMember(obj *jsonpatch.Object) (string, bool) {
	for _, name := range []string{"_id", domain.VersionField} {
		if obj.Has(name) {
			return name, true
		}
	}
	return "", false
}
