package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// window holds the mutable accounting for one channel.
type window struct {
	count         int
	windowResetAt time.Time
	backoffUntil  time.Time
	lastAccess    time.Time // Used by cleanup to identify stale channels
}

// MemoryStore implements Store using in-memory state.
type MemoryStore struct {
	mu      sync.RWMutex
	windows map[string]*window

	// Configuration
	cleanupInterval time.Duration
	staleThreshold  time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	// State management
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup

	// Observability metrics
	windowsCreated atomic.Int64
	windowsRemoved atomic.Int64
}

// MemoryStoreStats provides observability metrics for monitoring and debugging.
type MemoryStoreStats struct {
	WindowsCreated int64 // Total number of channel windows created
	WindowsRemoved int64 // Total number of stale windows removed
	ActiveWindows  int   // Current number of tracked channels
	IsRunning      bool  // Whether the cleanup goroutine is running
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets the cleanup interval for removing stale channel state.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if interval > 0 {
			ms.cleanupInterval = interval
		}
	}
}

// WithStaleThreshold sets how long a channel may go unused before its
// rate state is dropped.
func WithStaleThreshold(threshold time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if threshold > 0 {
			ms.staleThreshold = threshold
		}
	}
}

// WithMemoryStoreShutdownTimeout sets the graceful shutdown timeout.
func WithMemoryStoreShutdownTimeout(timeout time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if timeout > 0 {
			ms.shutdownTimeout = timeout
		}
	}
}

// WithMemoryStoreLogger sets the logger for internal operations.
func WithMemoryStoreLogger(logger *slog.Logger) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if logger != nil {
			ms.logger = logger
		}
	}
}

// NewMemoryStore creates a new in-memory store.
// Call Start() to begin background cleanup.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		windows:         make(map[string]*window),
		cleanupInterval: 5 * time.Minute,
		staleThreshold:  10 * time.Minute,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(ms)
	}

	return ms
}

// Acquire records one acquisition attempt against the channel's window.
func (ms *MemoryStore) Acquire(ctx context.Context, channel string, config Config) (State, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	w, exists := ms.windows[channel]
	if !exists {
		w = &window{windowResetAt: now.Add(config.Window)}
		ms.windows[channel] = w
		ms.windowsCreated.Add(1)
	}
	w.lastAccess = now

	// Active backoff rejects without touching the count.
	if !w.backoffUntil.IsZero() && now.Before(w.backoffUntil) {
		return ms.snapshot(w, true), nil
	}

	// Window rollover starts fresh and forgets any expired backoff. An
	// expired backoff inside a still-open window keeps the count, so a
	// repeat violation lands further over the ceiling and earns a longer
	// penalty.
	if now.After(w.windowResetAt) {
		w.backoffUntil = time.Time{}
		w.count = 0
		w.windowResetAt = now.Add(config.Window)
	}

	w.count++
	if w.count > config.Ceiling {
		w.backoffUntil = now.Add(config.backoffFor(w.count))
		return ms.snapshot(w, true), nil
	}

	return ms.snapshot(w, false), nil
}

// State returns the channel's current accounting without consuming a slot.
func (ms *MemoryStore) State(ctx context.Context, channel string) (State, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	w, exists := ms.windows[channel]
	if !exists {
		return State{}, nil
	}
	return ms.snapshot(w, w.backoffUntil.After(time.Now())), nil
}

// Reset clears all state for the channel.
func (ms *MemoryStore) Reset(ctx context.Context, channel string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.windows, channel)
	return nil
}

func (ms *MemoryStore) snapshot(w *window, throttled bool) State {
	return State{
		Count:         w.count,
		WindowResetAt: w.windowResetAt,
		BackoffUntil:  w.backoffUntil,
		Throttled:     throttled,
	}
}

// Start begins the background cleanup goroutine. This is a blocking
// operation that runs until the context is cancelled. Use Run() for
// errgroup pattern or call this in a goroutine.
func (ms *MemoryStore) Start(ctx context.Context) error {
	ms.mu.Lock()
	if ms.cancel != nil {
		ms.mu.Unlock()
		return fmt.Errorf("memory store already started")
	}
	ms.ctx, ms.cancel = context.WithCancel(ctx)
	ms.mu.Unlock()

	ms.running.Store(true)
	defer ms.running.Store(false)

	ms.logger.InfoContext(ms.ctx, "rate limit store cleanup started",
		slog.Duration("cleanup_interval", ms.cleanupInterval))

	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ms.ctx.Done():
			ms.logger.InfoContext(context.Background(), "rate limit store cleanup stopping")
			return ms.ctx.Err()
		case <-ticker.C:
			ms.cleanupWithWait()
		}
	}
}

// Stop gracefully shuts down the background cleanup with a timeout.
func (ms *MemoryStore) Stop() error {
	ms.mu.Lock()
	if ms.cancel == nil {
		ms.mu.Unlock()
		return fmt.Errorf("memory store not started")
	}

	cancel := ms.cancel
	ms.cancel = nil
	ms.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), ms.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		ms.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout exceeded after %s", ms.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (ms *MemoryStore) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- ms.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = ms.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// cleanupWithWait wraps removeStale so Stop can wait for an in-flight pass.
func (ms *MemoryStore) cleanupWithWait() {
	ms.mu.RLock()
	if ms.cancel == nil {
		ms.mu.RUnlock()
		return
	}
	ms.wg.Add(1)
	ms.mu.RUnlock()

	defer ms.wg.Done()
	ms.removeStale()
}

// removeStale drops windows for channels that have not sent recently so idle
// channels do not pin rate state forever.
func (ms *MemoryStore) removeStale() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	removed := 0
	for channel, w := range ms.windows {
		if now.Sub(w.lastAccess) > ms.staleThreshold {
			delete(ms.windows, channel)
			removed++
		}
	}

	if removed > 0 {
		ms.windowsRemoved.Add(int64(removed))
	}
}

// Stats returns current store statistics for observability and monitoring.
func (ms *MemoryStore) Stats() MemoryStoreStats {
	ms.mu.RLock()
	isRunning := ms.cancel != nil
	active := len(ms.windows)
	ms.mu.RUnlock()

	return MemoryStoreStats{
		WindowsCreated: ms.windowsCreated.Load(),
		WindowsRemoved: ms.windowsRemoved.Load(),
		ActiveWindows:  active,
		IsRunning:      isRunning,
	}
}

// Healthcheck validates that the store is operational once started.
func (ms *MemoryStore) Healthcheck(ctx context.Context) error {
	if ms.running.Load() && !ms.Stats().IsRunning {
		return fmt.Errorf("cleanup goroutine lost")
	}
	return nil
}
