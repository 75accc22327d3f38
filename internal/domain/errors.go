package domain

import "errors"

var (
	// ErrValidation marks malformed input; it is returned to the caller and never retried.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an insert that collides with an existing id.
	ErrConflict = errors.New("conflict")
	// ErrClaimConflict marks a claim that lost to a concurrent worker or hit a
	// terminal record. Expected under concurrent runs; a skip, not a failure.
	ErrClaimConflict = errors.New("claim conflict")
	// ErrIntegrity marks a payload referencing an entity that should exist but does not.
	ErrIntegrity = errors.New("integrity error")
	// ErrUnknownType marks a notification type with no registered handler.
	// Fatal for the whole batch: a new type needs a handler, not a silent skip.
	ErrUnknownType = errors.New("unknown notification type")
)
