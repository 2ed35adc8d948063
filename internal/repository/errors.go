package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrVersionConflict is returned when a payment update lost an
	// optimistic concurrency race; the caller must reload and retry.
	ErrVersionConflict = errors.New("payment version conflict")
)
