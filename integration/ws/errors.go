package ws

import "errors"

// Domain-specific WebSocket transport errors for consistent handling.
// Use errors.Is() to check error types for retry logic.
var (
	ErrEmptyBaseURL     = errors.New("empty websocket base URL")
	ErrInvalidBaseURL   = errors.New("invalid websocket base URL")
	ErrDialFailed       = errors.New("websocket dial failed")
	ErrConnectionClosed = errors.New("websocket connection closed")
	ErrProbeTimeout     = errors.New("websocket probe timed out")
)
