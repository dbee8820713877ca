package errors

import "errors"

var (
	ErrNotFound         = errors.New("booking not found")
	ErrInvalidID        = errors.New("invalid booking ID")
	ErrNotOwner         = errors.New("booking belongs to a different owner")
	ErrAlreadyCancelled = errors.New("booking is already cancelled")
	ErrOverlap          = errors.New("booking overlaps an existing active booking")
)
