package errors

import "errors"

var (
	ErrNotFound = errors.New("ride not found")

	ErrInvalidID = errors.New("invalid ride ID format")

	// ErrSeatConflict means the atomic reserve matched no document: the ride
	// is gone, not bookable, or does not have enough seats left.
	ErrSeatConflict = errors.New("seat reservation precondition failed")

	// ErrSeatOverflow means a release would push the counter past the
	// ride's total capacity. The ledger is corrupt if this ever fires.
	ErrSeatOverflow = errors.New("seat release exceeds total capacity")

	ErrStateConflict = errors.New("ride is not in a valid state for this transition")
)
