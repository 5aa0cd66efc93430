package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrInvalidQuote       = errors.New("invalid quote")
	ErrLockHeld           = errors.New("lock already held")
	ErrNotConfigured      = errors.New("not configured")
)
