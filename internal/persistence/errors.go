package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrConflict is returned when a document changed since it was read.
	ErrConflict = errors.New("persistence: version conflict")
	// ErrDuplicate is returned when a record with the same key already exists.
	ErrDuplicate = errors.New("persistence: duplicate record")
)
