package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrLocked is returned when the database is locked or busy.
	ErrLocked = errors.New("persistence: database locked")
	// ErrConstraint is returned when a write violates a table constraint.
	ErrConstraint = errors.New("persistence: constraint violation")
)
