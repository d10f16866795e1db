package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict is a generic sentinel for uniqueness/concurrency conflicts.
	ErrConflict = errors.New("conflict")
	// ErrStaleState signals the caller acted on an outdated row and must refresh.
	ErrStaleState = errors.New("stale state")
)
