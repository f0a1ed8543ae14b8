package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrStatusConflict is returned when a guarded status update finds the
	// record in a different state than expected.
	ErrStatusConflict = errors.New("status changed concurrently")

	// ErrDuplicate is returned when a record with the same unique key exists.
	ErrDuplicate = errors.New("entity already exists")
)
