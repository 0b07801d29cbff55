package health

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

// Status classifies a channel by its current score.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Default scoring parameters.
const (
	DefaultProbeInterval      = 30 * time.Second
	DefaultProbeTimeout       = 5 * time.Second
	DefaultSuccessStep        = 5
	DefaultFailureStep        = 20
	DefaultHealthyThreshold   = 50
	DefaultCriticalThreshold  = 20
	DefaultMaxConsecutiveFail = 5

	maxScore     = 100
	initialScore = 100
)

// Source exposes the channels to probe. Implemented by the connection pool.
type Source interface {
	ProbeTargets() map[string]transport.Channel
}

// channelHealth is the mutable probe state for one channel.
type channelHealth struct {
	score               int
	consecutiveFailures int
	removalSignaled     bool
	lastProbe           time.Time
}

// Monitor probes channels on a fixed period and maintains their scores.
type Monitor struct {
	source Source

	mu    sync.RWMutex
	state map[string]*channelHealth

	// Configuration
	probeInterval      time.Duration
	probeTimeout       time.Duration
	successStep        int
	failureStep        int
	healthyThreshold   int
	criticalThreshold  int
	maxConsecutiveFail int
	onRemoval          func(name string)
	logger             *slog.Logger

	// State management
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup

	// Observability metrics
	probesSucceeded  atomic.Int64
	probesFailed     atomic.Int64
	removalsSignaled atomic.Int64
}

// MonitorStats provides observability metrics for monitoring and debugging.
type MonitorStats struct {
	ProbesSucceeded  int64 // Total successful probes
	ProbesFailed     int64 // Total failed or timed-out probes
	RemovalsSignaled int64 // Total removal signals sent
	TrackedChannels  int   // Channels with probe state
	IsRunning        bool  // Whether the probe loop is running
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithProbeInterval sets the probe period.
func WithProbeInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		if interval > 0 {
			m.probeInterval = interval
		}
	}
}

// WithProbeTimeout bounds each individual probe.
func WithProbeTimeout(timeout time.Duration) MonitorOption {
	return func(m *Monitor) {
		if timeout > 0 {
			m.probeTimeout = timeout
		}
	}
}

// WithScoreSteps sets the per-probe score adjustments.
func WithScoreSteps(successStep, failureStep int) MonitorOption {
	return func(m *Monitor) {
		if successStep > 0 {
			m.successStep = successStep
		}
		if failureStep > 0 {
			m.failureStep = failureStep
		}
	}
}

// WithThresholds sets the healthy and critical score boundaries.
func WithThresholds(healthy, critical int) MonitorOption {
	return func(m *Monitor) {
		if healthy > 0 && critical >= 0 && critical < healthy {
			m.healthyThreshold = healthy
			m.criticalThreshold = critical
		}
	}
}

// WithMaxConsecutiveFailures sets how many probe failures in a row a
// critical channel survives before removal is signaled.
func WithMaxConsecutiveFailures(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.maxConsecutiveFail = n
		}
	}
}

// WithRemovalHandler sets the callback invoked when a channel should be
// removed from the pool. Called outside the monitor's lock.
func WithRemovalHandler(fn func(name string)) MonitorOption {
	return func(m *Monitor) {
		if fn != nil {
			m.onRemoval = fn
		}
	}
}

// WithMonitorLogger sets the logger for internal operations.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMonitor creates a health monitor over the given channel source.
// Call Start() to begin the probe loop.
func NewMonitor(source Source, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		source:             source,
		state:              make(map[string]*channelHealth),
		probeInterval:      DefaultProbeInterval,
		probeTimeout:       DefaultProbeTimeout,
		successStep:        DefaultSuccessStep,
		failureStep:        DefaultFailureStep,
		healthyThreshold:   DefaultHealthyThreshold,
		criticalThreshold:  DefaultCriticalThreshold,
		maxConsecutiveFail: DefaultMaxConsecutiveFail,
		onRemoval:          func(string) {},
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Score returns the channel's current health score. Untracked channels are
// treated optimistically and report the initial score.
func (m *Monitor) Score(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if ch, ok := m.state[name]; ok {
		return ch.score
	}
	return initialScore
}

// Healthy reports whether the channel's score clears the healthy threshold.
func (m *Monitor) Healthy(name string) bool {
	return m.Score(name) >= m.healthyThreshold
}

// Status classifies the channel by its current score.
func (m *Monitor) Status(name string) Status {
	score := m.Score(name)
	switch {
	case score >= m.healthyThreshold:
		return StatusHealthy
	case score >= m.criticalThreshold:
		return StatusDegraded
	default:
		return StatusCritical
	}
}

// Forget drops probe state for a channel that left the pool.
func (m *Monitor) Forget(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, name)
}

// Probe runs one probe pass over every channel in the source. Exposed so
// callers can force a pass outside the periodic schedule.
func (m *Monitor) Probe(ctx context.Context) {
	targets := m.source.ProbeTargets()

	m.dropUntracked(targets)

	var removals []string
	for name, ch := range targets {
		probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
		err := ch.Probe(probeCtx)
		cancel()

		if m.record(name, err) {
			removals = append(removals, name)
		}
	}

	for _, name := range removals {
		m.removalsSignaled.Add(1)
		m.logger.WarnContext(ctx, "signaling channel removal",
			slog.String("channel", name))
		m.onRemoval(name)
	}
}

// record applies one probe outcome and reports whether removal should be
// signaled for the channel.
func (m *Monitor) record(name string, probeErr error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.state[name]
	if !ok {
		ch = &channelHealth{score: initialScore}
		m.state[name] = ch
	}
	ch.lastProbe = time.Now()

	if probeErr == nil {
		m.probesSucceeded.Add(1)
		ch.score = min(ch.score+m.successStep, maxScore)
		ch.consecutiveFailures = 0
		ch.removalSignaled = false
		return false
	}

	m.probesFailed.Add(1)
	ch.score = max(ch.score-m.failureStep, 0)
	ch.consecutiveFailures++

	m.logger.Debug("channel probe failed",
		slog.String("channel", name),
		slog.Int("score", ch.score),
		slog.Int("consecutive_failures", ch.consecutiveFailures),
		slog.Any("error", probeErr))

	if ch.score < m.criticalThreshold &&
		ch.consecutiveFailures > m.maxConsecutiveFail &&
		!ch.removalSignaled {
		ch.removalSignaled = true
		return true
	}
	return false
}

// dropUntracked forgets state for channels no longer present in the source.
func (m *Monitor) dropUntracked(targets map[string]transport.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name := range m.state {
		if _, ok := targets[name]; !ok {
			delete(m.state, name)
		}
	}
}

// Start begins the periodic probe loop. This is a blocking operation that
// runs until the context is cancelled. Use Run() for errgroup pattern or
// call this in a goroutine.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return fmt.Errorf("health monitor already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.running.Store(true)
	defer m.running.Store(false)

	m.logger.InfoContext(m.ctx, "health monitor started",
		slog.Duration("probe_interval", m.probeInterval),
		slog.Duration("probe_timeout", m.probeTimeout))

	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.logger.InfoContext(context.Background(), "health monitor stopping")
			return m.ctx.Err()
		case <-ticker.C:
			m.probeWithWait()
		}
	}
}

// Stop gracefully shuts down the probe loop with a timeout.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return fmt.Errorf("health monitor not started")
	}
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
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
func (m *Monitor) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- m.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = m.Stop()
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

func (m *Monitor) probeWithWait() {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	m.wg.Add(1)
	m.mu.Unlock()

	defer m.wg.Done()
	m.Probe(ctx)
}

// Stats returns current monitor statistics for observability and monitoring.
func (m *Monitor) Stats() MonitorStats {
	m.mu.RLock()
	tracked := len(m.state)
	isRunning := m.cancel != nil
	m.mu.RUnlock()

	return MonitorStats{
		ProbesSucceeded:  m.probesSucceeded.Load(),
		ProbesFailed:     m.probesFailed.Load(),
		RemovalsSignaled: m.removalsSignaled.Load(),
		TrackedChannels:  tracked,
		IsRunning:        isRunning,
	}
}
