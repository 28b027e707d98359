package domain

import "errors"

var (
	// ErrNotFound is returned when a scholarship does not exist
	ErrNotFound = errors.New("scholarship not found")

	// ErrVersionMismatch is returned when the stored version differs from the expected one
	ErrVersionMismatch = errors.New("scholarship version mismatch")

	// ErrInvalidDocument is returned when a request body is not a usable scholarship
	ErrInvalidDocument = errors.New("invalid scholarship document")

	// ErrInvalidResult is returned when a patch produces an invalid scholarship
	ErrInvalidResult = errors.New("patch result is not a valid scholarship")
)
