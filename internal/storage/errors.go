package storage

import "errors"

// Errors shared by every verdict store backend.
var (
	// ErrNotFound is returned when no verdict exists for the requested
	// token.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned on a re-insert of the same (token,
	// analyzed_at) pair. Verdict history is append-only.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
