package message

import (
	"slices"
	"time"
)

// Priority represents message delivery priority with a defined total order.
// Using int8 keeps the per-message footprint minimal.
type Priority int8

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
	PriorityUrgent Priority = 3

	PriorityDefault Priority = PriorityNormal
)

// Valid checks if the priority is one of the defined levels.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

// String returns the lowercase name of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// Message is a single outbound payload awaiting delivery on a channel.
type Message struct {
	Payload    []byte    `json:"payload"`
	Priority   Priority  `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// New creates a message stamped with the current time.
// Invalid priorities fall back to PriorityDefault.
func New(payload []byte, priority Priority) Message {
	if !priority.Valid() {
		priority = PriorityDefault
	}
	return Message{
		Payload:    payload,
		Priority:   priority,
		EnqueuedAt: time.Now(),
	}
}

// SortStable orders messages by priority descending (urgent first).
// Messages with equal priority keep their relative enqueue order.
func SortStable(msgs []Message) {
	slices.SortStableFunc(msgs, func(a, b Message) int {
		return int(b.Priority) - int(a.Priority)
	})
}
