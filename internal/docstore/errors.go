package docstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document is not found
	ErrNotFound = errors.New("document not found")

	// ErrVersionMismatch is returned when there's a version conflict during update
	ErrVersionMismatch = errors.New("document version mismatch")

	// ErrMaxRetriesExceeded is returned when max retries are exceeded
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// ErrClosed is returned when operating on a closed storage
	ErrClosed = errors.New("storage is closed")

	// ErrMissingVersionField is returned when the version field is not specified
	ErrMissingVersionField = errors.New("version field is required in options")
)

// VersionError is a version conflict with details.
type VersionError struct {
	DocumentID      string
	ExpectedVersion int64
	StoredVersion   int64
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("version conflict for document %s: expected=%d, stored=%d",
		e.DocumentID, e.ExpectedVersion, e.StoredVersion)
}

// Is reports ErrVersionMismatch.
func (e *VersionError) Is(target error) bool {
	return target == ErrVersionMismatch
}

func newVersionError(id string, expected, stored int64) *VersionError {
	return &VersionError{
		DocumentID:      id,
		ExpectedVersion: expected,
		StoredVersion:   stored,
	}
}
