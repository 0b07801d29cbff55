package channelkit

import (
	"log/slog"

	"github.com/dmitrymomot/channelkit/core/batch"
	"github.com/dmitrymomot/channelkit/core/cleanup"
	"github.com/dmitrymomot/channelkit/core/health"
	"github.com/dmitrymomot/channelkit/core/overflow"
	"github.com/dmitrymomot/channelkit/core/pool"
	"github.com/dmitrymomot/channelkit/core/ratelimit"
	"github.com/dmitrymomot/channelkit/core/transport"
)

// Option configures an Optimizer.
type Option func(*optimizerOptions)

type optimizerOptions struct {
	logger          *slog.Logger
	factory         transport.Factory
	limitConfig     ratelimit.Config
	limitStore      ratelimit.Store
	channelEstimate int64

	poolOpts    []pool.Option
	monitorOpts []health.MonitorOption
	queueOpts   []overflow.QueueOption
	batcherOpts []batch.BatcherOption
	cleanupOpts []cleanup.Option
}

// WithLogger sets the logger shared by all components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *optimizerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFactory sets the transport factory used by Connect to open named
// channels. Without a factory, channels must be registered explicitly
// via RegisterChannel.
func WithFactory(factory transport.Factory) Option {
	return func(o *optimizerOptions) {
		if factory != nil {
			o.factory = factory
		}
	}
}

// WithRateLimit replaces the default per-channel rate limit configuration.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(o *optimizerOptions) {
		o.limitConfig = cfg
	}
}

// WithRateLimitStore replaces the default in-memory rate limit store,
// e.g. with a Redis-backed store shared across instances.
func WithRateLimitStore(store ratelimit.Store) Option {
	return func(o *optimizerOptions) {
		if store != nil {
			o.limitStore = store
		}
	}
}

// WithChannelMemoryEstimate sets the per-channel byte estimate reported
// to the cleanup registry. Default is 64KB per channel.
func WithChannelMemoryEstimate(bytes int64) Option {
	return func(o *optimizerOptions) {
		if bytes > 0 {
			o.channelEstimate = bytes
		}
	}
}

// WithPoolOptions forwards options to the connection pool.
func WithPoolOptions(opts ...pool.Option) Option {
	return func(o *optimizerOptions) {
		o.poolOpts = append(o.poolOpts, opts...)
	}
}

// WithMonitorOptions forwards options to the health monitor.
func WithMonitorOptions(opts ...health.MonitorOption) Option {
	return func(o *optimizerOptions) {
		o.monitorOpts = append(o.monitorOpts, opts...)
	}
}

// WithQueueOptions forwards options to the overflow queue.
func WithQueueOptions(opts ...overflow.QueueOption) Option {
	return func(o *optimizerOptions) {
		o.queueOpts = append(o.queueOpts, opts...)
	}
}

// WithBatcherOptions forwards options to the message batcher.
func WithBatcherOptions(opts ...batch.BatcherOption) Option {
	return func(o *optimizerOptions) {
		o.batcherOpts = append(o.batcherOpts, opts...)
	}
}

// WithCleanupOptions forwards options to the cleanup registry.
func WithCleanupOptions(opts ...cleanup.Option) Option {
	return func(o *optimizerOptions) {
		o.cleanupOpts = append(o.cleanupOpts, opts...)
	}
}
