package batch

import "errors"

// Package-level error definitions for batcher construction.
var (
	ErrChannelSourceNil = errors.New("channel source cannot be nil")
	ErrRateLimiterNil   = errors.New("rate limiter cannot be nil")
	ErrOverflowNil      = errors.New("overflow queue cannot be nil")
)
