package cleanup

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates what a registered resource represents.
type Kind string

const (
	KindChannel Kind = "channel"
	KindBuffer  Kind = "buffer"
	KindTimer   Kind = "timer"
	KindWatcher Kind = "watcher"
)

// Priority orders resources for reclamation. Lower priorities are disposed
// first; critical resources survive everything except explicit teardown.
type Priority int8

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 1
	PriorityHigh     Priority = 2
	PriorityCritical Priority = 3
)

// Valid checks if the priority is one of the defined levels.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
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
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Disposer releases whatever a registered resource holds.
type Disposer interface {
	Dispose(ctx context.Context) error
}

// DisposerFunc adapts a plain function to the Disposer interface.
type DisposerFunc func(ctx context.Context) error

func (f DisposerFunc) Dispose(ctx context.Context) error { return f(ctx) }

// resource is the registry's bookkeeping for one disposable.
type resource struct {
	id             uuid.UUID
	kind           Kind
	priority       Priority
	memoryEstimate int64
	registeredAt   time.Time
	lastUsed       time.Time
	disposer       Disposer
}

// ResourceInfo is a read-only snapshot of one registered resource.
type ResourceInfo struct {
	ID             uuid.UUID
	Kind           Kind
	Priority       Priority
	MemoryEstimate int64
	RegisteredAt   time.Time
	LastUsed       time.Time
}
