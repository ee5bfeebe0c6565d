package models

import "errors"

// Shared error taxonomy. Handlers map these onto HTTP statuses and
// user-visible Slack messages; services wrap them with context.
var (
	// ErrNotFound - the referenced task/target does not exist in the
	// team's partition.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied - the actor may not perform the attempted
	// operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict - the operation is no longer legal in the task's
	// current state (terminal task, repeated single-fire action).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput - the request fails validation before any store
	// mutation is attempted.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstream - the chat platform API failed; recoverable, surfaced
	// to the acting user rather than crashing.
	ErrUpstream = errors.New("upstream unavailable")
)
