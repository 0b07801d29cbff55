package ratelimit

import "errors"

// Package-level error definitions for rate limiter operations.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrStoreNil         = errors.New("store cannot be nil")
	ErrStoreUnavailable = errors.New("store unavailable")
)
