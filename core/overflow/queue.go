package overflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/channelkit/core/message"
)

// Queue holds undeliverable messages per channel until they are drained,
// evicted, or expired. Safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	channels map[string][]message.Message

	// Configuration
	capacity        int
	maxAge          time.Duration
	purgeInterval   time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	// State management
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup

	// Observability metrics
	enqueued atomic.Int64
	evicted  atomic.Int64
	expired  atomic.Int64
	drained  atomic.Int64
}

// QueueStats provides observability metrics for monitoring and debugging.
type QueueStats struct {
	Enqueued       int64 // Total messages accepted
	Evicted        int64 // Total messages dropped to make room
	Expired        int64 // Total messages purged past max age
	Drained        int64 // Total messages handed back for resubmission
	QueuedMessages int   // Current messages across all channels
	ActiveChannels int   // Channels with at least one queued message
	IsRunning      bool  // Whether the purge goroutine is running
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithCapacity sets the per-channel entry limit.
func WithCapacity(capacity int) QueueOption {
	return func(q *Queue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithMaxAge sets how long an entry may wait before it is purged.
func WithMaxAge(maxAge time.Duration) QueueOption {
	return func(q *Queue) {
		if maxAge > 0 {
			q.maxAge = maxAge
		}
	}
}

// WithPurgeInterval sets the background purge period.
func WithPurgeInterval(interval time.Duration) QueueOption {
	return func(q *Queue) {
		if interval > 0 {
			q.purgeInterval = interval
		}
	}
}

// WithQueueShutdownTimeout sets the graceful shutdown timeout.
func WithQueueShutdownTimeout(timeout time.Duration) QueueOption {
	return func(q *Queue) {
		if timeout > 0 {
			q.shutdownTimeout = timeout
		}
	}
}

// WithQueueLogger sets the logger for internal operations.
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewQueue creates an overflow queue with default capacity 1000 and max age
// 5 minutes. Call Start() to begin the background purge loop.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		channels:        make(map[string][]message.Message),
		capacity:        1000,
		maxAge:          5 * time.Minute,
		purgeInterval:   time.Minute,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Enqueue adds a message to the channel's queue. When the queue is full the
// oldest entry among those with the lowest priority is evicted to make room,
// so the queue never grows past its capacity.
func (q *Queue) Enqueue(channel string, msg message.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.purgeExpiredLocked(channel)

	if len(entries) >= q.capacity {
		victim := 0
		for i := 1; i < len(entries); i++ {
			if entries[i].Priority < entries[victim].Priority {
				victim = i
			}
		}
		q.logger.Debug("overflow queue full, evicting entry",
			slog.String("channel", channel),
			slog.String("priority", entries[victim].Priority.String()))
		entries = append(entries[:victim], entries[victim+1:]...)
		q.evicted.Add(1)
	}

	q.channels[channel] = append(entries, msg)
	q.enqueued.Add(1)
}

// Drain removes and returns all queued messages for the channel, ordered by
// priority descending with enqueue order preserved on ties.
func (q *Queue) Drain(channel string) []message.Message {
	q.mu.Lock()
	entries := q.purgeExpiredLocked(channel)
	delete(q.channels, channel)
	q.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	// Entries are appended in enqueue order, so a stable sort yields
	// priority-then-timestamp ordering.
	message.SortStable(entries)
	q.drained.Add(int64(len(entries)))
	return entries
}

// Len returns the number of queued messages for the channel.
func (q *Queue) Len(channel string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.channels[channel])
}

// Remove discards all queued messages for the channel without draining
// them. Called when a channel is removed from the pool.
func (q *Queue) Remove(channel string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.channels, channel)
}

// purgeExpiredLocked drops entries older than maxAge and returns the
// surviving slice. Caller must hold q.mu.
func (q *Queue) purgeExpiredLocked(channel string) []message.Message {
	entries := q.channels[channel]
	if len(entries) == 0 {
		return entries
	}

	cutoff := time.Now().Add(-q.maxAge)
	kept := entries[:0]
	removed := 0
	for _, e := range entries {
		if e.EnqueuedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}

	if removed > 0 {
		q.expired.Add(int64(removed))
		q.channels[channel] = kept
	}
	return kept
}

// purgeAll sweeps every channel for expired entries.
func (q *Queue) purgeAll() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for channel := range q.channels {
		if remaining := q.purgeExpiredLocked(channel); len(remaining) == 0 {
			delete(q.channels, channel)
		}
	}
}

// Start begins the background purge goroutine. This is a blocking operation
// that runs until the context is cancelled. Use Run() for errgroup pattern
// or call this in a goroutine.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.cancel != nil {
		q.mu.Unlock()
		return fmt.Errorf("overflow queue already started")
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()

	q.running.Store(true)
	defer q.running.Store(false)

	q.logger.InfoContext(q.ctx, "overflow purge loop started",
		slog.Duration("purge_interval", q.purgeInterval),
		slog.Duration("max_age", q.maxAge))

	ticker := time.NewTicker(q.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return q.ctx.Err()
		case <-ticker.C:
			q.purgeWithWait()
		}
	}
}

// Stop gracefully shuts down the purge loop with a timeout.
func (q *Queue) Stop() error {
	q.mu.Lock()
	if q.cancel == nil {
		q.mu.Unlock()
		return fmt.Errorf("overflow queue not started")
	}
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), q.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout exceeded after %s", q.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (q *Queue) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- q.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = q.Stop()
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

func (q *Queue) purgeWithWait() {
	q.mu.Lock()
	if q.cancel == nil {
		q.mu.Unlock()
		return
	}
	q.wg.Add(1)
	q.mu.Unlock()

	defer q.wg.Done()
	q.purgeAll()
}

// Stats returns current queue statistics for observability and monitoring.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	total := 0
	for _, entries := range q.channels {
		total += len(entries)
	}
	active := len(q.channels)
	isRunning := q.cancel != nil
	q.mu.Unlock()

	return QueueStats{
		Enqueued:       q.enqueued.Load(),
		Evicted:        q.evicted.Load(),
		Expired:        q.expired.Load(),
		Drained:        q.drained.Load(),
		QueuedMessages: total,
		ActiveChannels: active,
		IsRunning:      isRunning,
	}
}
