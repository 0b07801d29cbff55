package batch

import (
	"log/slog"
	"time"
)

// BatcherOption is a functional option for configuring a batcher.
type BatcherOption func(*batcherOptions)

type batcherOptions struct {
	batchSize          int
	flushTimeout       time.Duration
	flushCheckInterval time.Duration
	drainSubBatch      int
	drainPause         time.Duration
	logger             *slog.Logger
}

// WithBatchSize sets the batch size that forces a flush.
func WithBatchSize(n int) BatcherOption {
	return func(o *batcherOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithFlushTimeout sets the maximum batch age before the flush loop sends it.
func WithFlushTimeout(d time.Duration) BatcherOption {
	return func(o *batcherOptions) {
		if d > 0 {
			o.flushTimeout = d
		}
	}
}

// WithFlushCheckInterval sets how often the flush loop inspects batch ages.
func WithFlushCheckInterval(d time.Duration) BatcherOption {
	return func(o *batcherOptions) {
		if d > 0 {
			o.flushCheckInterval = d
		}
	}
}

// WithDrainSubBatch sets how many queued messages one drain step resubmits.
func WithDrainSubBatch(n int) BatcherOption {
	return func(o *batcherOptions) {
		if n > 0 {
			o.drainSubBatch = n
		}
	}
}

// WithDrainPause sets the pause between drain sub-batches.
func WithDrainPause(d time.Duration) BatcherOption {
	return func(o *batcherOptions) {
		if d > 0 {
			o.drainPause = d
		}
	}
}

// WithBatcherLogger sets the logger for internal operations.
func WithBatcherLogger(logger *slog.Logger) BatcherOption {
	return func(o *batcherOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
