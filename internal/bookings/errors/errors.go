package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrStateConflict means a guarded status transition matched no
	// document: the booking exists but is not in an allowed source state.
	ErrStateConflict = errors.New("booking is not in a valid state for this transition")
)
