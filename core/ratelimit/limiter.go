package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// State is a snapshot of one channel's rate accounting.
type State struct {
	Count         int       // Acquisitions in the current window
	WindowResetAt time.Time // When the current window rolls over
	BackoffUntil  time.Time // Zero when no backoff is active
	Throttled     bool      // True when the last acquisition was rejected
}

// InBackoff reports whether the backoff deadline is still in the future.
func (s State) InBackoff(now time.Time) bool {
	return !s.BackoffUntil.IsZero() && now.Before(s.BackoffUntil)
}

// Store abstracts rate limit state storage. The acquisition decision runs
// store-side so distributed backends can make it atomically.
type Store interface {
	// Acquire records one acquisition attempt and returns the resulting
	// state. State.Throttled reports whether the attempt was rejected.
	Acquire(ctx context.Context, channel string, config Config) (State, error)

	// State returns the current accounting without consuming a slot.
	State(ctx context.Context, channel string) (State, error)

	// Reset clears all state for the channel.
	Reset(ctx context.Context, channel string) error
}

// Limiter enforces per-channel send ceilings with exponential backoff.
type Limiter struct {
	store  Store
	config Config
	logger *slog.Logger
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithLimiterLogger sets the logger for internal operations.
func WithLimiterLogger(logger *slog.Logger) LimiterOption {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLimiter creates a limiter backed by the given store.
func NewLimiter(store Store, config Config, opts ...LimiterOption) (*Limiter, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		store:  store,
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Allow consumes one send slot for the channel. It returns false while the
// channel is over its ceiling or in backoff. Store failures are returned to
// the caller, who should treat the attempt as not allowed.
func (l *Limiter) Allow(ctx context.Context, channel string) (bool, error) {
	state, err := l.store.Acquire(ctx, channel, l.config)
	if err != nil {
		return false, err
	}

	if state.Throttled {
		l.logger.DebugContext(ctx, "send rejected by rate limiter",
			slog.String("channel", channel),
			slog.Int("count", state.Count),
			slog.Time("backoff_until", state.BackoffUntil))
	}

	return !state.Throttled, nil
}

// Throttled reports whether the channel currently sits in backoff,
// without consuming a send slot. Used by queue draining to avoid
// resubmitting into an active penalty window.
func (l *Limiter) Throttled(ctx context.Context, channel string) (bool, error) {
	state, err := l.store.State(ctx, channel)
	if err != nil {
		return false, err
	}
	return state.InBackoff(time.Now()), nil
}

// State exposes the channel's current accounting for diagnostics.
func (l *Limiter) State(ctx context.Context, channel string) (State, error) {
	return l.store.State(ctx, channel)
}

// Reset clears all rate limit state for the channel (administrative
// override, also called when a channel is removed from the pool).
func (l *Limiter) Reset(ctx context.Context, channel string) error {
	return l.store.Reset(ctx, channel)
}
