package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/channelkit/core/transport"
)

// HealthSource supplies per-channel health scores. Implemented by the
// health monitor; bound after construction via SetHealthSource.
type HealthSource interface {
	Score(name string) int
	Healthy(name string) bool
}

// entry is the pool's bookkeeping for one registered channel.
type entry struct {
	channel      transport.Channel
	registeredAt time.Time
	lastUsed     time.Time
	messageCount int64
	errorCount   int64
}

// ChannelInfo is a read-only snapshot of one channel's bookkeeping.
type ChannelInfo struct {
	Name         string
	RegisteredAt time.Time
	LastUsed     time.Time
	MessageCount int64
	ErrorCount   int64
	Score        int
	Healthy      bool
}

// Status summarizes the pool for application-facing reporting.
type Status struct {
	TotalConnections   int
	HealthyConnections int
	AverageHealth      float64
}

// Pool owns registered channels and their lifecycle. Safe for concurrent use.
type Pool struct {
	mu      sync.RWMutex
	entries map[string]*entry
	health  HealthSource

	// Configuration
	maxSize       int
	pruneInterval time.Duration
	idleThreshold time.Duration
	healthFloor   int
	removeHooks   []func(name string)
	logger        *slog.Logger

	// State management
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup

	// Observability metrics
	registered atomic.Int64
	evicted    atomic.Int64
	pruned     atomic.Int64
	removed    atomic.Int64
}

// Stats provides observability metrics for monitoring and debugging.
type Stats struct {
	Registered int64 // Total channels registered
	Evicted    int64 // Total channels evicted to free capacity
	Pruned     int64 // Total channels removed by the prune loop
	Removed    int64 // Total removals (evictions and prunes included)
	ActiveSize int   // Current number of registered channels
	IsRunning  bool  // Whether the prune loop is running
}

// Option configures a Pool.
type Option func(*Pool)

// WithMaxSize sets the capacity limit.
func WithMaxSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxSize = n
		}
	}
}

// WithPruneInterval sets the period of the background prune loop.
func WithPruneInterval(interval time.Duration) Option {
	return func(p *Pool) {
		if interval > 0 {
			p.pruneInterval = interval
		}
	}
}

// WithIdleThreshold sets how long a channel may go unused before pruning.
func WithIdleThreshold(threshold time.Duration) Option {
	return func(p *Pool) {
		if threshold > 0 {
			p.idleThreshold = threshold
		}
	}
}

// WithHealthFloor sets the score below which the prune loop removes a channel.
func WithHealthFloor(floor int) Option {
	return func(p *Pool) {
		if floor >= 0 {
			p.healthFloor = floor
		}
	}
}

// WithRemoveHook appends a callback invoked after a channel is removed.
// Used to clear the channel's rate limiter, batch, and queue state so no
// bookkeeping outlives the channel. Hooks run outside the pool's lock.
func WithRemoveHook(fn func(name string)) Option {
	return func(p *Pool) {
		if fn != nil {
			p.removeHooks = append(p.removeHooks, fn)
		}
	}
}

// WithPoolLogger sets the logger for internal operations.
func WithPoolLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a connection pool with default capacity 50.
// Call Start() to begin periodic pruning.
func New(opts ...Option) *Pool {
	p := &Pool{
		entries:       make(map[string]*entry),
		maxSize:       50,
		pruneInterval: time.Minute,
		idleThreshold: 10 * time.Minute,
		healthFloor:   20,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// SetHealthSource binds the health monitor after construction. The monitor
// discovers channels through ProbeTargets, so neither side can be built
// with the other already in hand.
func (p *Pool) SetHealthSource(hs HealthSource) {
	p.mu.Lock()
	p.health = hs
	p.mu.Unlock()
}

// Register adds a channel under the given name, evicting the least healthy
// and least recently used channel if the pool is full. Registering an
// existing name replaces the old channel, closing it best-effort.
func (p *Pool) Register(ctx context.Context, name string, ch transport.Channel) error {
	if ch == nil {
		return fmt.Errorf("channel cannot be nil")
	}

	var (
		evictName string
		evictCh   transport.Channel
		replaced  transport.Channel
	)

	p.mu.Lock()
	if existing, ok := p.entries[name]; ok {
		replaced = existing.channel
	} else if len(p.entries) >= p.maxSize {
		evictName = p.evictionCandidateLocked()
		if evictName == "" {
			p.mu.Unlock()
			return transport.ErrCapacityExceeded
		}
		evictCh = p.entries[evictName].channel
		delete(p.entries, evictName)
		p.evicted.Add(1)
		p.removed.Add(1)
	}

	now := time.Now()
	p.entries[name] = &entry{
		channel:      ch,
		registeredAt: now,
		lastUsed:     now,
	}
	p.registered.Add(1)
	p.mu.Unlock()

	if replaced != nil {
		p.closeQuietly(ctx, name, replaced)
	}
	if evictCh != nil {
		p.logger.InfoContext(ctx, "evicting channel to free capacity",
			slog.String("evicted", evictName),
			slog.String("registered", name))
		p.closeQuietly(ctx, evictName, evictCh)
		p.runRemoveHooks(evictName)
	}

	return nil
}

// Get returns the channel registered under the name.
func (p *Pool) Get(name string) (transport.Channel, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.entries[name]
	if !ok {
		return nil, transport.ErrNotFound
	}
	return e.channel, nil
}

// MarkUsed updates the channel's last-used timestamp and send counter.
// Called on every send and receive; unknown names are ignored.
func (p *Pool) MarkUsed(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[name]; ok {
		e.lastUsed = time.Now()
		e.messageCount++
	}
}

// Healthy reports whether the named channel is registered and clears the
// healthy threshold of the bound health source.
func (p *Pool) Healthy(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.entries[name]; !ok {
		return false
	}
	return p.healthyLocked(name)
}

// RecordError bumps the channel's error counter. Bookkeeping only; health
// classification stays with the monitor.
func (p *Pool) RecordError(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[name]; ok {
		e.errorCount++
	}
}

// Remove unsubscribes the channel idempotently. Close errors are swallowed
// and logged; bookkeeping state for the name is always cleared through the
// remove hooks.
func (p *Pool) Remove(ctx context.Context, name string) error {
	p.mu.Lock()
	e, ok := p.entries[name]
	if ok {
		delete(p.entries, name)
		p.removed.Add(1)
	}
	p.mu.Unlock()

	if ok {
		p.closeQuietly(ctx, name, e.channel)
	}
	p.runRemoveHooks(name)
	return nil
}

// Prune removes channels idle longer than the idle threshold or with health
// below the floor. Errors are logged and never propagated.
func (p *Pool) Prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.idleThreshold)

	p.mu.Lock()
	var victims []string
	for name, e := range p.entries {
		if e.lastUsed.Before(cutoff) || p.scoreLocked(name) < p.healthFloor {
			victims = append(victims, name)
		}
	}
	p.mu.Unlock()

	for _, name := range victims {
		p.pruned.Add(1)
		p.logger.InfoContext(ctx, "pruning channel",
			slog.String("channel", name),
			slog.Int("score", p.score(name)))
		_ = p.Remove(ctx, name)
	}
}

// Size returns the current number of registered channels.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Info returns a snapshot of one channel's bookkeeping.
func (p *Pool) Info(name string) (ChannelInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.entries[name]
	if !ok {
		return ChannelInfo{}, transport.ErrNotFound
	}
	return ChannelInfo{
		Name:         name,
		RegisteredAt: e.registeredAt,
		LastUsed:     e.lastUsed,
		MessageCount: e.messageCount,
		ErrorCount:   e.errorCount,
		Score:        p.scoreLocked(name),
		Healthy:      p.healthyLocked(name),
	}, nil
}

// Status summarizes connection counts and average health for reporting.
func (p *Pool) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Status{TotalConnections: len(p.entries)}
	if st.TotalConnections == 0 {
		return st
	}

	total := 0
	for name := range p.entries {
		score := p.scoreLocked(name)
		total += score
		if p.healthyLocked(name) {
			st.HealthyConnections++
		}
	}
	st.AverageHealth = float64(total) / float64(st.TotalConnections)
	return st
}

// ProbeTargets exposes registered channels to the health monitor.
func (p *Pool) ProbeTargets() map[string]transport.Channel {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]transport.Channel, len(p.entries))
	for name, e := range p.entries {
		out[name] = e.channel
	}
	return out
}

// evictionCandidateLocked picks the least healthy channel, breaking ties by
// least recent use. Caller must hold p.mu.
func (p *Pool) evictionCandidateLocked() string {
	var (
		victim      string
		victimScore int
		victimUsed  time.Time
	)
	for name, e := range p.entries {
		score := p.scoreLocked(name)
		if victim == "" || score < victimScore ||
			(score == victimScore && e.lastUsed.Before(victimUsed)) {
			victim = name
			victimScore = score
			victimUsed = e.lastUsed
		}
	}
	return victim
}

func (p *Pool) score(name string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.scoreLocked(name)
}

func (p *Pool) scoreLocked(name string) int {
	if p.health == nil {
		return 100
	}
	return p.health.Score(name)
}

func (p *Pool) healthyLocked(name string) bool {
	if p.health == nil {
		return true
	}
	return p.health.Healthy(name)
}

func (p *Pool) closeQuietly(ctx context.Context, name string, ch transport.Channel) {
	if err := ch.Close(); err != nil {
		p.logger.WarnContext(ctx, "channel close failed",
			slog.String("channel", name),
			slog.Any("error", err))
	}
}

func (p *Pool) runRemoveHooks(name string) {
	for _, hook := range p.removeHooks {
		hook(name)
	}
}

// Start begins the periodic prune loop. This is a blocking operation that
// runs until the context is cancelled. Use Run() for errgroup pattern or
// call this in a goroutine.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return fmt.Errorf("pool already started")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.running.Store(true)
	defer p.running.Store(false)

	p.logger.InfoContext(p.ctx, "pool prune loop started",
		slog.Duration("prune_interval", p.pruneInterval),
		slog.Duration("idle_threshold", p.idleThreshold))

	ticker := time.NewTicker(p.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.InfoContext(context.Background(), "pool prune loop stopping")
			return p.ctx.Err()
		case <-ticker.C:
			p.pruneWithWait()
		}
	}
}

// Stop gracefully shuts down the prune loop with a timeout.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return fmt.Errorf("pool not started")
	}
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (p *Pool) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- p.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = p.Stop()
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

func (p *Pool) pruneWithWait() {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return
	}
	ctx := p.ctx
	p.wg.Add(1)
	p.mu.Unlock()

	defer p.wg.Done()
	p.Prune(ctx)
}

// CloseAll removes every channel, closing each best-effort. Used on
// application teardown.
func (p *Pool) CloseAll(ctx context.Context) {
	p.mu.RLock()
	names := make([]string, 0, len(p.entries))
	for name := range p.entries {
		names = append(names, name)
	}
	p.mu.RUnlock()

	for _, name := range names {
		_ = p.Remove(ctx, name)
	}
}

// Stats returns current pool statistics for observability and monitoring.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	size := len(p.entries)
	isRunning := p.cancel != nil
	p.mu.RUnlock()

	return Stats{
		Registered: p.registered.Load(),
		Evicted:    p.evicted.Load(),
		Pruned:     p.pruned.Load(),
		Removed:    p.removed.Load(),
		ActiveSize: size,
		IsRunning:  isRunning,
	}
}
