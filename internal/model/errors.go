package model

import "errors"

// Error taxonomy shared by the store, the exam engine, and the HTTP layer.
// Handlers map these to status codes; everything else wraps them with %w.
var (
	// ErrNotFound means a referenced entity id is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials covers every student login failure, including an
	// already completed session. Deliberately undifferentiated so a caller
	// cannot probe which check failed.
	ErrInvalidCredentials = errors.New("invalid details or already completed")

	// ErrConflict means the operation would violate a uniqueness invariant or
	// touch a finalized session.
	ErrConflict = errors.New("conflict")

	// ErrValidation means malformed input.
	ErrValidation = errors.New("validation failed")
)
