package channelkit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/channelkit/core/batch"
	"github.com/dmitrymomot/channelkit/core/cleanup"
	"github.com/dmitrymomot/channelkit/core/health"
	"github.com/dmitrymomot/channelkit/core/lifecycle"
	"github.com/dmitrymomot/channelkit/core/message"
	"github.com/dmitrymomot/channelkit/core/overflow"
	"github.com/dmitrymomot/channelkit/core/pool"
	"github.com/dmitrymomot/channelkit/core/ratelimit"
	"github.com/dmitrymomot/channelkit/core/transport"
	"github.com/dmitrymomot/channelkit/pkg/logger"
)

// ErrNoFactory is returned by Connect when the Optimizer was built
// without a transport factory.
var ErrNoFactory = errors.New("no transport factory configured")

// runner is the lifecycle shape shared by all managed components.
type runner interface {
	Run(ctx context.Context) func() error
}

// Optimizer is the delivery pipeline facade. It owns the connection
// pool, health monitor, rate limiter, overflow queue, batcher, cleanup
// registry and lifecycle bus, and keeps their per-channel state
// consistent: removing a channel from the pool clears its pending
// batch, queued overflow, rate limit window and health record.
type Optimizer struct {
	pool     *pool.Pool
	monitor  *health.Monitor
	limiter  *ratelimit.Limiter
	queue    *overflow.Queue
	batcher  *batch.Batcher
	registry *cleanup.Registry
	bus      *lifecycle.Bus

	factory         transport.Factory
	channelEstimate int64
	log             *slog.Logger

	mu        sync.Mutex
	resources map[string]uuid.UUID // channel name -> cleanup resource ID

	runners   []runner
	startedAt time.Time
}

// PoolStatus is a point-in-time view of the connection pool.
type PoolStatus struct {
	TotalConnections   int
	HealthyConnections int
	AverageHealth      float64
	MemoryUsage        int64
}

// Metrics aggregates delivery throughput counters.
type Metrics struct {
	MessagesPerSecond float64
	ErrorRate         float64
	ActiveConnections int
	MessagesSent      int64
	MessagesQueued    int64
}

// New assembles the delivery pipeline. Components run lazily: call Run
// to start the background loops (flushing, probing, pruning, purging
// and pressure checks).
func New(opts ...Option) (*Optimizer, error) {
	cfg := &optimizerOptions{
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		limitConfig:     ratelimit.DefaultConfig(),
		channelEstimate: 64 << 10,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	o := &Optimizer{
		factory:         cfg.factory,
		channelEstimate: cfg.channelEstimate,
		log:             cfg.logger,
		resources:       make(map[string]uuid.UUID),
		startedAt:       time.Now(),
	}

	store := cfg.limitStore
	if store == nil {
		memStore := ratelimit.NewMemoryStore(ratelimit.WithMemoryStoreLogger(cfg.logger))
		o.runners = append(o.runners, memStore)
		store = memStore
	}

	limiter, err := ratelimit.NewLimiter(store, cfg.limitConfig,
		ratelimit.WithLimiterLogger(cfg.logger))
	if err != nil {
		return nil, err
	}
	o.limiter = limiter

	o.queue = overflow.NewQueue(append([]overflow.QueueOption{
		overflow.WithQueueLogger(cfg.logger),
	}, cfg.queueOpts...)...)

	o.pool = pool.New(append([]pool.Option{
		pool.WithPoolLogger(cfg.logger),
		pool.WithRemoveHook(o.onChannelRemoved),
	}, cfg.poolOpts...)...)

	o.monitor = health.NewMonitor(o.pool, append([]health.MonitorOption{
		health.WithMonitorLogger(cfg.logger),
		health.WithRemovalHandler(func(name string) {
			o.log.Warn("removing critically unhealthy channel", logger.Channel(name))
			_ = o.pool.Remove(context.Background(), name)
		}),
	}, cfg.monitorOpts...)...)
	o.pool.SetHealthSource(o.monitor)

	batcher, err := batch.NewBatcher(o.pool, o.limiter, o.queue, append([]batch.BatcherOption{
		batch.WithBatcherLogger(cfg.logger),
	}, cfg.batcherOpts...)...)
	if err != nil {
		return nil, err
	}
	o.batcher = batcher

	o.registry = cleanup.NewRegistry(append([]cleanup.Option{
		cleanup.WithRegistryLogger(cfg.logger),
	}, cfg.cleanupOpts...)...)

	o.bus = lifecycle.NewBus(lifecycle.WithBusLogger(cfg.logger))
	o.bus.Subscribe(func(ctx context.Context, state lifecycle.State) {
		if state == lifecycle.StateBackground {
			o.registry.OnBackground(ctx)
		}
	})

	o.runners = append(o.runners,
		o.queue, o.pool, o.monitor, o.batcher, o.registry)

	return o, nil
}

// Connect opens a channel through the configured factory and registers
// it under the given cleanup priority.
func (o *Optimizer) Connect(ctx context.Context, name string, priority cleanup.Priority) error {
	if o.factory == nil {
		return ErrNoFactory
	}

	ch, err := o.factory.Open(ctx, name)
	if err != nil {
		return err
	}
	return o.RegisterChannel(ctx, name, ch, priority)
}

// RegisterChannel adds an already-open channel to the pool and tracks
// it as a disposable resource so memory pressure can close it.
func (o *Optimizer) RegisterChannel(ctx context.Context, name string, ch transport.Channel, priority cleanup.Priority) error {
	if err := o.pool.Register(ctx, name, ch); err != nil {
		return err
	}

	// The disposer only touches the pool while it still owns the name;
	// a re-registered or already-removed channel makes it a no-op.
	var resID uuid.UUID
	id, err := o.registry.Register(cleanup.KindChannel, priority, o.channelEstimate,
		cleanup.DisposerFunc(func(ctx context.Context) error {
			o.mu.Lock()
			current, ok := o.resources[name]
			o.mu.Unlock()
			if !ok || current != resID {
				return nil
			}
			return o.pool.Remove(ctx, name)
		}))
	if err != nil {
		_ = o.pool.Remove(ctx, name)
		return err
	}

	o.mu.Lock()
	resID = id
	old, existed := o.resources[name]
	o.resources[name] = id
	o.mu.Unlock()

	// Re-registration replaces the tracked resource for the name.
	if existed {
		o.forgetResource(old)
	}

	o.log.InfoContext(ctx, "channel registered",
		logger.Channel(name),
		logger.Priority(priority.String()))
	return nil
}

// UnregisterChannel closes the channel and clears every piece of state
// associated with its name.
func (o *Optimizer) UnregisterChannel(ctx context.Context, name string) error {
	return o.pool.Remove(ctx, name)
}

// Send queues a message for batched delivery. Fire-and-forget: backoff
// and transmit failures route the message to the overflow queue.
func (o *Optimizer) Send(ctx context.Context, channel string, payload []byte, priority message.Priority) {
	o.batcher.Send(ctx, channel, payload, priority)
}

// Flush forces immediate delivery of the channel's pending batch.
func (o *Optimizer) Flush(ctx context.Context, channel string) {
	o.batcher.Flush(ctx, channel)
}

// DrainQueued resubmits messages parked in the overflow queue for the
// channel, in gentle sub-batches to avoid re-triggering the limiter.
func (o *Optimizer) DrainQueued(ctx context.Context, channel string) {
	o.batcher.DrainQueued(ctx, channel)
}

// Reclaim triggers a cleanup pass. Aggressive reclaim disposes all
// non-critical resources; a gentle pass only low-priority and stale
// ones.
func (o *Optimizer) Reclaim(ctx context.Context, aggressive bool) {
	o.registry.Reclaim(ctx, aggressive)
}

// Background reports that the host application moved to the background,
// triggering a gentle resource reclaim.
func (o *Optimizer) Background(ctx context.Context) {
	o.bus.Background(ctx)
}

// Foreground reports that the host application returned to the
// foreground.
func (o *Optimizer) Foreground(ctx context.Context) {
	o.bus.Foreground(ctx)
}

// PoolStatus reports pool occupancy, aggregate health and the estimated
// memory held by tracked resources.
func (o *Optimizer) PoolStatus() PoolStatus {
	st := o.pool.Status()
	return PoolStatus{
		TotalConnections:   st.TotalConnections,
		HealthyConnections: st.HealthyConnections,
		AverageHealth:      st.AverageHealth,
		MemoryUsage:        o.registry.EstimatedUsage(),
	}
}

// Metrics reports delivery throughput since the Optimizer was created.
func (o *Optimizer) Metrics() Metrics {
	bs := o.batcher.Stats()

	elapsed := time.Since(o.startedAt).Seconds()
	var perSecond float64
	if elapsed > 0 {
		perSecond = float64(bs.MessagesSent) / elapsed
	}

	var errorRate float64
	if attempts := bs.BatchesFlushed + bs.FlushFailures; attempts > 0 {
		errorRate = float64(bs.FlushFailures) / float64(attempts)
	}

	return Metrics{
		MessagesPerSecond: perSecond,
		ErrorRate:         errorRate,
		ActiveConnections: o.pool.Size(),
		MessagesSent:      bs.MessagesSent,
		MessagesQueued:    bs.MessagesQueued,
	}
}

// healthchecker is implemented by components that can verify their own
// internal state.
type healthchecker interface {
	Healthcheck(ctx context.Context) error
}

// Healthcheck verifies every component that exposes a check, suitable
// for readiness probes. Returns the first failure encountered.
func (o *Optimizer) Healthcheck(ctx context.Context) error {
	for _, r := range o.runners {
		hc, ok := r.(healthchecker)
		if !ok {
			continue
		}
		if err := hc.Healthcheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run starts every background loop and blocks until the context is
// cancelled or a component fails. Safe to run in an errgroup alongside
// the application's other services.
func (o *Optimizer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range o.runners {
		g.Go(r.Run(ctx))
	}
	return g.Wait()
}

// Close flushes pending batches and tears the pipeline down: resources
// dispose in ascending priority order, then any channels left in the
// pool close.
func (o *Optimizer) Close(ctx context.Context) error {
	o.batcher.FlushAll(ctx)
	o.registry.DisposeAll(ctx)
	o.pool.CloseAll(ctx)
	return nil
}

// onChannelRemoved runs on every pool removal and clears the name's
// state across components. The hook pops the cleanup resource first so
// the disposer's own pool.Remove call cannot loop back here with work
// left to do.
func (o *Optimizer) onChannelRemoved(name string) {
	o.mu.Lock()
	id, tracked := o.resources[name]
	if tracked {
		delete(o.resources, name)
	}
	o.mu.Unlock()

	ctx := context.Background()
	o.batcher.Discard(name)
	o.queue.Remove(name)
	if err := o.limiter.Reset(ctx, name); err != nil {
		o.log.Warn("rate limit reset failed", logger.Channel(name), logger.Error(err))
	}
	o.monitor.Forget(name)

	if tracked {
		o.forgetResource(id)
	}
}

// forgetResource disposes a registry entry whose underlying channel is
// already gone. The disposer's pool.Remove is a no-op at this point.
func (o *Optimizer) forgetResource(id uuid.UUID) {
	o.registry.DisposeOne(context.Background(), id)
}
