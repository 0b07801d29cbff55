package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// State is the application's execution state.
type State string

const (
	StateForeground State = "foreground"
	StateBackground State = "background"
)

// Listener receives state transitions. Listeners run synchronously on
// the reporting goroutine and must not block.
type Listener func(ctx context.Context, state State)

// Bus tracks the application state and notifies subscribed listeners on
// transitions. Safe for concurrent use.
type Bus struct {
	mu        sync.RWMutex
	state     State
	listeners map[uuid.UUID]Listener
	order     []uuid.UUID
	logger    *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBusLogger sets the logger for transition events.
func WithBusLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates a lifecycle bus starting in StateForeground.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		state:     StateForeground,
		listeners: make(map[uuid.UUID]Listener),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe registers a listener and returns its subscription ID.
// Nil listeners are ignored and return uuid.Nil.
func (b *Bus) Subscribe(fn Listener) uuid.UUID {
	if fn == nil {
		return uuid.Nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New()
	b.listeners[id] = fn
	b.order = append(b.order, id)
	return id
}

// Unsubscribe removes a listener. Unknown IDs are ignored.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.listeners[id]; !ok {
		return
	}
	delete(b.listeners, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// State returns the current application state.
func (b *Bus) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Foreground reports that the application entered the foreground.
func (b *Bus) Foreground(ctx context.Context) {
	b.transition(ctx, StateForeground)
}

// Background reports that the application entered the background.
func (b *Bus) Background(ctx context.Context) {
	b.transition(ctx, StateBackground)
}

// transition moves the state machine and notifies listeners in
// subscription order. Reporting the current state is a no-op.
func (b *Bus) transition(ctx context.Context, next State) {
	b.mu.Lock()
	if b.state == next {
		b.mu.Unlock()
		return
	}
	previous := b.state
	b.state = next

	fns := make([]Listener, 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.listeners[id])
	}
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "app state changed",
		slog.String("from", string(previous)),
		slog.String("to", string(next)))

	for _, fn := range fns {
		fn(ctx, next)
	}
}
