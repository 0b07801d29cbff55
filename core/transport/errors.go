package transport

import (
	"errors"
	"fmt"
)

// Package-level error definitions for channel operations.
var (
	ErrNotFound         = errors.New("channel not found")
	ErrCapacityExceeded = errors.New("pool capacity exceeded")
	ErrRateLimited      = errors.New("channel rate limited")
	ErrChannelClosed    = errors.New("channel closed")
)

// Op identifies which channel operation failed.
type Op string

const (
	OpSend  Op = "send"
	OpProbe Op = "probe"
	OpClose Op = "close"
	OpOpen  Op = "open"
)

// Error wraps an opaque transport failure with the operation and channel
// name for logging. Use errors.Is/As to reach the underlying cause.
type Error struct {
	Op      Op
	Channel string
	Err     error
}

// NewError wraps err with operation and channel context.
func NewError(op Op, channel string, err error) *Error {
	return &Error{Op: op, Channel: channel, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s %q: %v", e.Op, e.Channel, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
