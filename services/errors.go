package services

import "errors"

// Sentinel errors surfaced by service operations. Handlers map these to
// HTTP statuses; everything else is a 500.
var (
	// ErrNotFound covers entities, children and notifications that are
	// absent or not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState covers requests that are well-formed but not
	// currently allowed (snooze days out of range, swapping to an
	// ineligible challenge, second slot not enabled).
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict covers uniqueness violations that upsert logic should
	// normally prevent (duplicate link for a condition, duplicate progress).
	ErrConflict = errors.New("conflict")
)
