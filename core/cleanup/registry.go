package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// PressureLevel is the current memory-pressure classification.
type PressureLevel string

const (
	PressureNormal PressureLevel = "normal"
	PressureSoft   PressureLevel = "soft"
	PressureHard   PressureLevel = "hard"
)

// Package-level error definitions for registry operations.
var (
	ErrDisposerNil     = errors.New("disposer cannot be nil")
	ErrInvalidPriority = errors.New("invalid priority")
)

// Estimator returns the current estimated byte usage driving reclaim.
type Estimator func() int64

// Registry tracks disposable resources and reclaims them under pressure.
// Safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	resources map[uuid.UUID]*resource
	pressure  PressureLevel

	// Configuration
	softThreshold   int64
	hardThreshold   int64
	staleness       time.Duration
	checkInterval   time.Duration
	shutdownTimeout time.Duration
	estimator       Estimator
	logger          *slog.Logger

	// State management
	ctx        context.Context
	cancel     context.CancelFunc
	running    atomic.Bool
	reclaiming atomic.Bool
	wg         sync.WaitGroup

	// Observability metrics
	registered      atomic.Int64
	disposed        atomic.Int64
	disposeFailures atomic.Int64
	reclaimPasses   atomic.Int64
}

// Stats provides observability metrics for monitoring and debugging.
type Stats struct {
	Registered      int64         // Total resources registered
	Disposed        int64         // Total resources disposed
	DisposeFailures int64         // Total dispose calls that returned an error
	ReclaimPasses   int64         // Total reclaim passes executed
	ActiveResources int           // Current tracked resources
	EstimatedUsage  int64         // Current estimated byte usage
	Pressure        PressureLevel // Current pressure classification
	IsRunning       bool          // Whether the pressure-check loop is running
}

// Option configures a Registry.
type Option func(*Registry)

// WithSoftThreshold sets the byte usage that triggers gentle reclaim.
func WithSoftThreshold(bytes int64) Option {
	return func(r *Registry) {
		if bytes > 0 {
			r.softThreshold = bytes
		}
	}
}

// WithHardThreshold sets the byte usage that triggers aggressive reclaim.
func WithHardThreshold(bytes int64) Option {
	return func(r *Registry) {
		if bytes > 0 {
			r.hardThreshold = bytes
		}
	}
}

// WithStalenessWindow sets how long a resource may go unused before a
// gentle reclaim disposes it.
func WithStalenessWindow(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.staleness = d
		}
	}
}

// WithCheckInterval sets the period of the background pressure check.
func WithCheckInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.checkInterval = d
		}
	}
}

// WithMemoryEstimator replaces the default estimator (the sum of registered
// estimates) with an application-provided source, e.g. process RSS.
func WithMemoryEstimator(fn Estimator) Option {
	return func(r *Registry) {
		if fn != nil {
			r.estimator = fn
		}
	}
}

// WithRegistryLogger sets the logger for internal operations.
func WithRegistryLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a cleanup registry with 50MB/100MB pressure
// thresholds and a 5-minute staleness window.
// Call Start() to begin periodic pressure checks.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		resources:       make(map[uuid.UUID]*resource),
		pressure:        PressureNormal,
		softThreshold:   50 << 20,
		hardThreshold:   100 << 20,
		staleness:       5 * time.Minute,
		checkInterval:   30 * time.Second,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.estimator == nil {
		r.estimator = r.trackedUsage
	}

	return r
}

// Register adds a disposable resource and returns its generated ID.
func (r *Registry) Register(kind Kind, priority Priority, memoryEstimate int64, d Disposer) (uuid.UUID, error) {
	if d == nil {
		return uuid.Nil, ErrDisposerNil
	}
	if !priority.Valid() {
		return uuid.Nil, ErrInvalidPriority
	}

	now := time.Now()
	res := &resource{
		id:             uuid.New(),
		kind:           kind,
		priority:       priority,
		memoryEstimate: memoryEstimate,
		registeredAt:   now,
		lastUsed:       now,
		disposer:       d,
	}

	r.mu.Lock()
	r.resources[res.id] = res
	r.mu.Unlock()
	r.registered.Add(1)

	return res.id, nil
}

// Touch updates the resource's last-used timestamp so gentle reclaims skip
// recently active resources. Unknown IDs are ignored.
func (r *Registry) Touch(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res, ok := r.resources[id]; ok {
		res.lastUsed = time.Now()
	}
}

// DisposeOne disposes a single resource by ID. The entry is removed whether
// disposal succeeds or fails; failures are logged, never returned.
func (r *Registry) DisposeOne(ctx context.Context, id uuid.UUID) {
	r.mu.Lock()
	res, ok := r.resources[id]
	if ok {
		delete(r.resources, id)
	}
	r.mu.Unlock()

	if ok {
		r.dispose(ctx, res)
	}
}

// DisposeByKind disposes every resource of the given kind.
func (r *Registry) DisposeByKind(ctx context.Context, kind Kind) {
	r.disposeMatching(ctx, func(res *resource) bool {
		return res.kind == kind
	})
}

// DisposeByMaxPriority disposes every resource at or below the given
// priority.
func (r *Registry) DisposeByMaxPriority(ctx context.Context, priority Priority) {
	r.disposeMatching(ctx, func(res *resource) bool {
		return res.priority <= priority
	})
}

// Reclaim frees memory by disposing tracked resources. Aggressive reclaim
// disposes everything except critical; a gentle pass disposes low-priority
// resources and anything unused beyond the staleness window. Reclaim passes
// are mutually exclusive: a call while one runs is a no-op.
func (r *Registry) Reclaim(ctx context.Context, aggressive bool) {
	if !r.reclaiming.CompareAndSwap(false, true) {
		return
	}
	defer r.reclaiming.Store(false)

	r.reclaimPasses.Add(1)
	staleCutoff := time.Now().Add(-r.staleness)

	removed := r.disposeMatching(ctx, func(res *resource) bool {
		if res.priority == PriorityCritical {
			return false
		}
		if aggressive {
			return true
		}
		return res.priority == PriorityLow || res.lastUsed.Before(staleCutoff)
	})

	r.logger.InfoContext(ctx, "reclaim pass finished",
		slog.Bool("aggressive", aggressive),
		slog.Int("disposed", removed))
}

// DisposeAll releases every resource in ascending priority order, so
// critical resources are the last to release state others may still
// reference during shutdown.
func (r *Registry) DisposeAll(ctx context.Context) {
	r.mu.Lock()
	all := make([]*resource, 0, len(r.resources))
	for _, res := range r.resources {
		all = append(all, res)
	}
	r.resources = make(map[uuid.UUID]*resource)
	r.mu.Unlock()

	slices.SortStableFunc(all, func(a, b *resource) int {
		return int(a.priority) - int(b.priority)
	})

	for _, res := range all {
		r.dispose(ctx, res)
	}
}

// CheckPressure evaluates the estimator against the thresholds, moves the
// pressure state machine, and triggers the matching reclaim tier.
func (r *Registry) CheckPressure(ctx context.Context) {
	usage := r.estimator()

	var level PressureLevel
	switch {
	case usage >= r.hardThreshold:
		level = PressureHard
	case usage >= r.softThreshold:
		level = PressureSoft
	default:
		level = PressureNormal
	}

	r.mu.Lock()
	previous := r.pressure
	r.pressure = level
	r.mu.Unlock()

	if level != previous {
		r.logger.InfoContext(ctx, "memory pressure changed",
			slog.String("from", string(previous)),
			slog.String("to", string(level)),
			slog.Int64("usage", usage))
	}

	switch level {
	case PressureHard:
		r.Reclaim(ctx, true)
	case PressureSoft:
		r.Reclaim(ctx, false)
	}
}

// OnBackground performs the gentle, non-critical reclaim triggered by an
// application background transition.
func (r *Registry) OnBackground(ctx context.Context) {
	r.logger.InfoContext(ctx, "app backgrounded, reclaiming")
	r.Reclaim(ctx, false)
}

// EstimatedUsage sums the registered memory estimates.
func (r *Registry) EstimatedUsage() int64 {
	return r.trackedUsage()
}

// Resources returns snapshots of all tracked resources for diagnostics.
func (r *Registry) Resources() []ResourceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ResourceInfo, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, ResourceInfo{
			ID:             res.id,
			Kind:           res.kind,
			Priority:       res.priority,
			MemoryEstimate: res.memoryEstimate,
			RegisteredAt:   res.registeredAt,
			LastUsed:       res.lastUsed,
		})
	}
	return out
}

// disposeMatching removes and disposes all resources the predicate selects,
// returning how many were disposed.
func (r *Registry) disposeMatching(ctx context.Context, match func(*resource) bool) int {
	r.mu.Lock()
	var selected []*resource
	for id, res := range r.resources {
		if match(res) {
			selected = append(selected, res)
			delete(r.resources, id)
		}
	}
	r.mu.Unlock()

	for _, res := range selected {
		r.dispose(ctx, res)
	}
	return len(selected)
}

// dispose runs the resource's Disposer. Best-effort: errors are logged and
// the resource is gone either way.
func (r *Registry) dispose(ctx context.Context, res *resource) {
	if err := res.disposer.Dispose(ctx); err != nil {
		r.disposeFailures.Add(1)
		r.logger.WarnContext(ctx, "resource dispose failed",
			slog.String("resource_id", res.id.String()),
			slog.String("kind", string(res.kind)),
			slog.Any("error", err))
	}
	r.disposed.Add(1)
}

func (r *Registry) trackedUsage() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, res := range r.resources {
		total += res.memoryEstimate
	}
	return total
}

// Start begins the periodic pressure-check loop. This is a blocking
// operation that runs until the context is cancelled. Use Run() for
// errgroup pattern or call this in a goroutine.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return fmt.Errorf("cleanup registry already started")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.running.Store(true)
	defer r.running.Store(false)

	r.logger.InfoContext(r.ctx, "cleanup registry started",
		slog.Duration("check_interval", r.checkInterval),
		slog.Int64("soft_threshold", r.softThreshold),
		slog.Int64("hard_threshold", r.hardThreshold))

	ticker := time.NewTicker(r.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.InfoContext(context.Background(), "cleanup registry stopping")
			return r.ctx.Err()
		case <-ticker.C:
			r.checkWithWait()
		}
	}
}

// Stop gracefully shuts down the pressure-check loop with a timeout.
func (r *Registry) Stop() error {
	r.mu.Lock()
	if r.cancel == nil {
		r.mu.Unlock()
		return fmt.Errorf("cleanup registry not started")
	}
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout exceeded after %s", r.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (r *Registry) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- r.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = r.Stop()
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

func (r *Registry) checkWithWait() {
	r.mu.Lock()
	if r.cancel == nil {
		r.mu.Unlock()
		return
	}
	ctx := r.ctx
	r.wg.Add(1)
	r.mu.Unlock()

	defer r.wg.Done()
	r.CheckPressure(ctx)
}

// Stats returns current registry statistics for observability and monitoring.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	active := len(r.resources)
	pressure := r.pressure
	isRunning := r.cancel != nil
	r.mu.Unlock()

	return Stats{
		Registered:      r.registered.Load(),
		Disposed:        r.disposed.Load(),
		DisposeFailures: r.disposeFailures.Load(),
		ReclaimPasses:   r.reclaimPasses.Load(),
		ActiveResources: active,
		EstimatedUsage:  r.EstimatedUsage(),
		Pressure:        pressure,
		IsRunning:       isRunning,
	}
}
