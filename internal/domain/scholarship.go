package domain

import (
	"context"
	"encoding/json"

	"scholarships/pkg/jsonpatch"
)

// Field names the service manages itself.
const (
	FieldID          = "id"
	FieldCreated     = "created"
	FieldLastUpdated = "last_updated"
)

// Record is a stored scholarship document.
type Record struct {
	ID string
	// Version is the optimistic concurrency token. It is never part of Body.
	Version int64
	Body    *jsonpatch.Object
}

// NewRecord builds a record from a client supplied object. Any id member in
// body is replaced by id.
func NewRecord(id string, body *jsonpatch.Object) *Record {
	if body == nil {
		body = jsonpatch.NewObject()
	} else {
		body = jsonpatch.Clone(body).(*jsonpatch.Object)
	}
	body.Delete(FieldID)
	return &Record{ID: id, Body: body}
}

// Document returns the API representation: the body with id as its first
// member.
func (r *Record) Document() *jsonpatch.Object {
	doc := jsonpatch.NewObject()
	doc.Set(FieldID, jsonpatch.String(r.ID))
	if r.Body == nil {
		return doc
	}
	for _, k := range r.Body.Keys() {
		if k == FieldID {
			continue
		}
		v, _ := r.Body.Get(k)
		doc.Set(k, jsonpatch.Clone(v))
	}
	return doc
}

// MarshalJSON encodes the API representation.
func (r *Record) MarshalJSON() ([]byte, error) {
	return r.Document().MarshalJSON()
}

// UnmarshalJSON decodes an API representation. The version is not part of it.
func (r *Record) UnmarshalJSON(data []byte) error {
	v, err := jsonpatch.ParseValue(data)
	if err != nil {
		return err
	}
	obj, ok := v.(*jsonpatch.Object)
	if !ok {
		return ErrInvalidDocument
	}
	if id, ok := obj.Get(FieldID); ok {
		if s, ok := id.(jsonpatch.String); ok {
			r.ID = string(s)
		}
	}
	obj.Delete(FieldID)
	r.Body = obj
	return nil
}

// Copy returns a deep copy of the record.
func (r *Record) Copy() *Record {
	if r == nil {
		return nil
	}
	cp := &Record{ID: r.ID, Version: r.Version}
	if r.Body != nil {
		cp.Body = jsonpatch.Clone(r.Body).(*jsonpatch.Object)
	}
	return cp
}

// Key returns the document id used by the document store.
func (r *Record) Key() string { return r.ID }

// Revision returns the version used by the document store.
func (r *Record) Revision() int64 { return r.Version }

// SetRevision sets the version used by the document store.
func (r *Record) SetRevision(v int64) { r.Version = v }

var _ json.Marshaler = (*Record)(nil)

// PatchResult is the outcome of a patch request.
type PatchResult struct {
	Record *Record
	// Applied is false when a test operation failed; Record is then the
	// unchanged stored record.
	Applied bool
	Failure *jsonpatch.Error
}

// EditFunc modifies a copy of a stored record.
type EditFunc func(rec *Record) (*Record, error)

// ScholarshipRepository is the single persistence collaborator used by the
// service. An expected version of zero means "any version".
type ScholarshipRepository interface {
	List(ctx context.Context, limit int) ([]*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Create(ctx context.Context, rec *Record) (*Record, error)
	Replace(ctx context.Context, rec *Record, expectedVersion int64) (*Record, error)
	Update(ctx context.Context, id string, expectedVersion int64, fn EditFunc) (*Record, error)
	Delete(ctx context.Context, id string, expectedVersion int64) (*Record, error)
}

// ScholarshipUseCase defines the scholarship business logic.
type ScholarshipUseCase interface {
	List(ctx context.Context, limit int) ([]*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Create(ctx context.Context, body jsonpatch.Value) (*Record, error)
	Replace(ctx context.Context, id string, body jsonpatch.Value, ifMatch int64) (*Record, error)
	Patch(ctx context.Context, id string, patch []byte, ifMatch int64) (*PatchResult, error)
	Delete(ctx context.Context, id string, ifMatch int64) (*Record, error)
}
