package health_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/channelkit/core/health"
	"github.com/dmitrymomot/channelkit/core/transport"
)

type stubChannel struct {
	mu       sync.Mutex
	probeErr error
	slow     time.Duration
}

func (c *stubChannel) Send(ctx context.Context, payload []byte) error { return nil }

func (c *stubChannel) Probe(ctx context.Context) error {
	c.mu.Lock()
	slow, err := c.slow, c.probeErr
	c.mu.Unlock()

	if slow > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(slow):
		}
	}
	return err
}

func (c *stubChannel) Close() error { return nil }

func (c *stubChannel) fail(err error) {
	c.mu.Lock()
	c.probeErr = err
	c.mu.Unlock()
}

type stubSource struct {
	mu       sync.Mutex
	channels map[string]transport.Channel
}

func newStubSource() *stubSource {
	return &stubSource{channels: make(map[string]transport.Channel)}
}

func (s *stubSource) add(name string, ch transport.Channel) {
	s.mu.Lock()
	s.channels[name] = ch
	s.mu.Unlock()
}

func (s *stubSource) remove(name string) {
	s.mu.Lock()
	delete(s.channels, name)
	s.mu.Unlock()
}

func (s *stubSource) ProbeTargets() map[string]transport.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]transport.Channel, len(s.channels))
	for name, ch := range s.channels {
		out[name] = ch
	}
	return out
}

func TestMonitor_Scoring(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("untracked channel is optimistic", func(t *testing.T) {
		t.Parallel()

		monitor := health.NewMonitor(newStubSource())
		assert.Equal(t, 100, monitor.Score("unknown"))
		assert.True(t, monitor.Healthy("unknown"))
	})

	t.Run("failure drops score by larger step", func(t *testing.T) {
		t.Parallel()

		source := newStubSource()
		ch := &stubChannel{}
		source.add("c1", ch)
		monitor := health.NewMonitor(source)

		ch.fail(errors.New("broken pipe"))
		monitor.Probe(ctx)
		assert.Equal(t, 80, monitor.Score("c1"))

		ch.fail(nil)
		monitor.Probe(ctx)
		assert.Equal(t, 85, monitor.Score("c1"))
	})

	t.Run("score clamps to bounds", func(t *testing.T) {
		t.Parallel()

		source := newStubSource()
		ch := &stubChannel{}
		source.add("c1", ch)
		monitor := health.NewMonitor(source)

		monitor.Probe(ctx)
		assert.Equal(t, 100, monitor.Score("c1"), "success cannot push past 100")

		ch.fail(errors.New("down"))
		for i := 0; i < 10; i++ {
			monitor.Probe(ctx)
		}
		assert.Equal(t, 0, monitor.Score("c1"), "failure cannot push below 0")
	})

	t.Run("status transitions", func(t *testing.T) {
		t.Parallel()

		source := newStubSource()
		ch := &stubChannel{}
		source.add("c1", ch)
		monitor := health.NewMonitor(source)

		assert.Equal(t, health.StatusHealthy, monitor.Status("c1"))

		ch.fail(errors.New("down"))
		monitor.Probe(ctx)
		monitor.Probe(ctx)
		monitor.Probe(ctx)
		// 100 -> 40 after three failures
		assert.Equal(t, health.StatusDegraded, monitor.Status("c1"))

		monitor.Probe(ctx)
		monitor.Probe(ctx)
		// 40 -> 0
		assert.Equal(t, health.StatusCritical, monitor.Status("c1"))
	})
}

func TestMonitor_ProbeTimeout(t *testing.T) {
	t.Parallel()

	source := newStubSource()
	source.add("c1", &stubChannel{slow: time.Second})
	monitor := health.NewMonitor(source,
		health.WithProbeTimeout(10*time.Millisecond))

	monitor.Probe(context.Background())

	assert.Equal(t, 80, monitor.Score("c1"), "timed-out probe counts as failure")
	assert.Equal(t, int64(1), monitor.Stats().ProbesFailed)
}

func TestMonitor_RemovalSignal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	source := newStubSource()
	ch := &stubChannel{}
	source.add("c1", ch)

	var removed []string
	monitor := health.NewMonitor(source,
		health.WithMaxConsecutiveFailures(5),
		health.WithRemovalHandler(func(name string) {
			removed = append(removed, name)
			source.remove(name)
		}),
	)

	ch.fail(errors.New("gone"))
	for i := 0; i < 6; i++ {
		monitor.Probe(ctx)
	}

	// 6 failures: score 0 (critical) and streak over the limit.
	require.Equal(t, []string{"c1"}, removed)

	// Channel left the source; its state is forgotten on the next pass.
	monitor.Probe(ctx)
	assert.Zero(t, monitor.Stats().TrackedChannels)
}

func TestMonitor_Forget(t *testing.T) {
	t.Parallel()

	source := newStubSource()
	ch := &stubChannel{}
	source.add("c1", ch)
	monitor := health.NewMonitor(source)

	ch.fail(errors.New("down"))
	monitor.Probe(context.Background())
	require.Equal(t, 80, monitor.Score("c1"))

	monitor.Forget("c1")
	assert.Equal(t, 100, monitor.Score("c1"), "forgotten channel resets to optimistic")
}

func TestMonitor_Lifecycle(t *testing.T) {
	t.Parallel()

	source := newStubSource()
	source.add("c1", &stubChannel{})
	monitor := health.NewMonitor(source,
		health.WithProbeInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = monitor.Start(ctx) }()

	assert.Eventually(t, func() bool {
		return monitor.Stats().ProbesSucceeded > 0
	}, time.Second, 5*time.Millisecond)

	assert.Error(t, monitor.Start(ctx), "second start is rejected")
	require.NoError(t, monitor.Stop())
}
