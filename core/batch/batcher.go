package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/channelkit/core/message"
	"github.com/dmitrymomot/channelkit/core/transport"
)

// ChannelSource provides channel lookup and usage bookkeeping.
// Implemented by the connection pool.
type ChannelSource interface {
	Get(name string) (transport.Channel, error)
	Healthy(name string) bool
	MarkUsed(name string)
	RecordError(name string)
}

// RateLimiter gates sends per channel. Implemented by ratelimit.Limiter.
type RateLimiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
	Throttled(ctx context.Context, channel string) (bool, error)
}

// OverflowQueue holds messages that could not be sent now.
// Implemented by overflow.Queue.
type OverflowQueue interface {
	Enqueue(channel string, msg message.Message)
	Drain(channel string) []message.Message
	Len(channel string) int
}

// pending is the open batch for one channel.
type pending struct {
	msgs      []message.Message
	createdAt time.Time
}

// Batcher accumulates per-channel batches and routes them through the rate
// limiter and overflow queue to the pool. Safe for concurrent use.
type Batcher struct {
	source  ChannelSource
	limiter RateLimiter
	queue   OverflowQueue

	mu      sync.Mutex
	batches map[string]*pending

	// Configuration
	batchSize          int
	flushTimeout       time.Duration
	flushCheckInterval time.Duration
	drainSubBatch      int
	drainPause         time.Duration
	logger             *slog.Logger

	// State management
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup

	// Observability metrics
	messagesSent     atomic.Int64
	batchesFlushed   atomic.Int64
	flushFailures    atomic.Int64
	messagesQueued   atomic.Int64
	messagesAccepted atomic.Int64
}

// BatcherStats provides observability metrics for monitoring and debugging.
type BatcherStats struct {
	MessagesAccepted int64 // Total messages handed to Send
	MessagesSent     int64 // Total messages transmitted
	MessagesQueued   int64 // Total messages routed to overflow
	BatchesFlushed   int64 // Total successful flushes
	FlushFailures    int64 // Total flushes that failed to transmit
	PendingBatches   int   // Channels with an open batch
	IsRunning        bool  // Whether the flush loop is running
}

// NewBatcher creates a message batcher over the given collaborators.
// Call Start() to enable age-based flushing.
func NewBatcher(source ChannelSource, limiter RateLimiter, queue OverflowQueue, opts ...BatcherOption) (*Batcher, error) {
	if source == nil {
		return nil, ErrChannelSourceNil
	}
	if limiter == nil {
		return nil, ErrRateLimiterNil
	}
	if queue == nil {
		return nil, ErrOverflowNil
	}

	options := &batcherOptions{
		batchSize:          10,
		flushTimeout:       100 * time.Millisecond,
		flushCheckInterval: 25 * time.Millisecond,
		drainSubBatch:      5,
		drainPause:         50 * time.Millisecond,
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Batcher{
		source:             source,
		limiter:            limiter,
		queue:              queue,
		batches:            make(map[string]*pending),
		batchSize:          options.batchSize,
		flushTimeout:       options.flushTimeout,
		flushCheckInterval: options.flushCheckInterval,
		drainSubBatch:      options.drainSubBatch,
		drainPause:         options.drainPause,
		logger:             options.logger,
	}, nil
}

// Send enqueues a payload for best-effort delivery on the channel. It never
// returns an error: rate-limited and failed messages land in the overflow
// queue. The hot path only appends in memory; transmission happens when a
// flush condition fires.
func (b *Batcher) Send(ctx context.Context, channel string, payload []byte, priority message.Priority) {
	b.messagesAccepted.Add(1)
	msg := message.New(payload, priority)

	allowed, err := b.limiter.Allow(ctx, channel)
	if err != nil {
		b.logger.WarnContext(ctx, "rate limiter unavailable, queueing message",
			slog.String("channel", channel),
			slog.Any("error", err))
	}
	if err != nil || !allowed {
		b.enqueueOverflow(channel, msg)
		return
	}

	b.mu.Lock()
	p, ok := b.batches[channel]
	if !ok {
		p = &pending{createdAt: time.Now()}
		b.batches[channel] = p
	}
	p.msgs = append(p.msgs, msg)
	needFlush := len(p.msgs) >= b.batchSize || msg.Priority == message.PriorityUrgent
	b.mu.Unlock()

	if needFlush {
		b.Flush(ctx, channel)
	}
}

// Flush transmits the channel's open batch, if any. The batch is removed
// atomically; on transmit failure every message moves to the overflow queue.
func (b *Batcher) Flush(ctx context.Context, channel string) {
	b.mu.Lock()
	p, ok := b.batches[channel]
	if ok {
		delete(b.batches, channel)
	}
	b.mu.Unlock()

	if !ok || len(p.msgs) == 0 {
		return
	}

	message.SortStable(p.msgs)

	ch, err := b.source.Get(channel)
	if err != nil || !b.source.Healthy(channel) {
		b.logger.DebugContext(ctx, "channel unavailable, queueing batch",
			slog.String("channel", channel),
			slog.Int("size", len(p.msgs)))
		b.enqueueAll(channel, p.msgs)
		return
	}

	framed, err := frame(p.msgs)
	if err != nil {
		// Framing only fails on a marshaling bug; drop nothing.
		b.logger.ErrorContext(ctx, "batch framing failed",
			slog.String("channel", channel),
			slog.Any("error", err))
		b.enqueueAll(channel, p.msgs)
		return
	}

	if err := ch.Send(ctx, framed); err != nil {
		b.flushFailures.Add(1)
		b.source.RecordError(channel)
		b.logger.WarnContext(ctx, "batch transmit failed, queueing batch",
			slog.String("channel", channel),
			slog.Int("size", len(p.msgs)),
			slog.Any("error", err))
		b.enqueueAll(channel, p.msgs)
		return
	}

	b.source.MarkUsed(channel)
	b.batchesFlushed.Add(1)
	b.messagesSent.Add(int64(len(p.msgs)))
}

// FlushAll flushes every open batch regardless of age. Used on shutdown.
func (b *Batcher) FlushAll(ctx context.Context) {
	for _, channel := range b.pendingChannels(false) {
		b.Flush(ctx, channel)
	}
}

// Discard drops the channel's open batch without sending. Called when the
// channel is removed from the pool.
func (b *Batcher) Discard(channel string) {
	b.mu.Lock()
	delete(b.batches, channel)
	b.mu.Unlock()
}

// DrainQueued resubmits the channel's overflow backlog through Send in
// sub-batches with a pause in between, so draining does not immediately
// re-trigger the rate limiter. Invoke after a reconnect or once backoff
// clears. Still-throttled messages simply return to the queue.
func (b *Batcher) DrainQueued(ctx context.Context, channel string) {
	msgs := b.queue.Drain(channel)
	if len(msgs) == 0 {
		return
	}

	b.logger.InfoContext(ctx, "draining overflow queue",
		slog.String("channel", channel),
		slog.Int("size", len(msgs)))

	for i, msg := range msgs {
		if i > 0 && i%b.drainSubBatch == 0 {
			select {
			case <-ctx.Done():
				// Put the rest back rather than dropping it.
				b.enqueueAll(channel, msgs[i:])
				return
			case <-time.After(b.drainPause):
			}
		}
		b.Send(ctx, channel, msg.Payload, msg.Priority)
	}
}

func (b *Batcher) enqueueOverflow(channel string, msg message.Message) {
	b.queue.Enqueue(channel, msg)
	b.messagesQueued.Add(1)
}

func (b *Batcher) enqueueAll(channel string, msgs []message.Message) {
	for _, msg := range msgs {
		b.enqueueOverflow(channel, msg)
	}
}

// pendingChannels lists channels with an open batch; with agedOnly it keeps
// only batches past the flush timeout.
func (b *Batcher) pendingChannels(agedOnly bool) []string {
	cutoff := time.Now().Add(-b.flushTimeout)

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	for channel, p := range b.batches {
		if !agedOnly || p.createdAt.Before(cutoff) {
			out = append(out, channel)
		}
	}
	return out
}

// frame encodes a sorted batch as one JSON payload for a single transmit.
func frame(msgs []message.Message) ([]byte, error) {
	framed, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("frame batch: %w", err)
	}
	return framed, nil
}

// Start begins the age-based flush loop. This is a blocking operation that
// runs until the context is cancelled. Use Run() for errgroup pattern or
// call this in a goroutine.
func (b *Batcher) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return fmt.Errorf("batcher already started")
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.mu.Unlock()

	b.running.Store(true)
	defer b.running.Store(false)

	b.logger.InfoContext(b.ctx, "batch flush loop started",
		slog.Duration("flush_timeout", b.flushTimeout),
		slog.Duration("check_interval", b.flushCheckInterval))

	ticker := time.NewTicker(b.flushCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			b.logger.InfoContext(context.Background(), "batch flush loop stopping")
			return b.ctx.Err()
		case <-ticker.C:
			b.flushAgedWithWait()
		}
	}
}

// Stop gracefully shuts down the flush loop, sending any open batches first.
func (b *Batcher) Stop() error {
	b.mu.Lock()
	if b.cancel == nil {
		b.mu.Unlock()
		return fmt.Errorf("batcher not started")
	}
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.FlushAll(ctx)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (b *Batcher) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- b.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = b.Stop()
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

func (b *Batcher) flushAgedWithWait() {
	b.mu.Lock()
	if b.cancel == nil {
		b.mu.Unlock()
		return
	}
	ctx := b.ctx
	b.wg.Add(1)
	b.mu.Unlock()

	defer b.wg.Done()
	for _, channel := range b.pendingChannels(true) {
		b.Flush(ctx, channel)
	}
}

// Stats returns current batcher statistics for observability and monitoring.
func (b *Batcher) Stats() BatcherStats {
	b.mu.Lock()
	pendingCount := len(b.batches)
	isRunning := b.cancel != nil
	b.mu.Unlock()

	return BatcherStats{
		MessagesAccepted: b.messagesAccepted.Load(),
		MessagesSent:     b.messagesSent.Load(),
		MessagesQueued:   b.messagesQueued.Load(),
		BatchesFlushed:   b.batchesFlushed.Load(),
		FlushFailures:    b.flushFailures.Load(),
		PendingBatches:   pendingCount,
		IsRunning:        isRunning,
	}
}
