package batch_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/channelkit/core/batch"
	"github.com/dmitrymomot/channelkit/core/message"
	"github.com/dmitrymomot/channelkit/core/overflow"
	"github.com/dmitrymomot/channelkit/core/ratelimit"
	"github.com/dmitrymomot/channelkit/core/transport"
)

// recChannel records every framed transmission.
type recChannel struct {
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
}

func (c *recChannel) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, payload)
	return nil
}

func (c *recChannel) Probe(ctx context.Context) error { return nil }
func (c *recChannel) Close() error                    { return nil }

// sentPayloads decodes all recorded frames into payload strings in
// transmission order.
func (c *recChannel) sentPayloads(t *testing.T) []string {
	t.Helper()

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, f := range c.frames {
		var msgs []message.Message
		require.NoError(t, json.Unmarshal(f, &msgs))
		for _, m := range msgs {
			out = append(out, string(m.Payload))
		}
	}
	return out
}

func (c *recChannel) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// mockSource is an in-memory ChannelSource.
type mockSource struct {
	mu        sync.Mutex
	channels  map[string]transport.Channel
	unhealthy map[string]bool
	errored   int
}

func newMockSource() *mockSource {
	return &mockSource{
		channels:  make(map[string]transport.Channel),
		unhealthy: make(map[string]bool),
	}
}

func (s *mockSource) add(name string, ch transport.Channel) {
	s.mu.Lock()
	s.channels[name] = ch
	s.mu.Unlock()
}

func (s *mockSource) Get(name string) (transport.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[name]
	if !ok {
		return nil, transport.ErrNotFound
	}
	return ch, nil
}

func (s *mockSource) Healthy(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[name]
	return ok && !s.unhealthy[name]
}

func (s *mockSource) MarkUsed(name string) {}

func (s *mockSource) RecordError(name string) {
	s.mu.Lock()
	s.errored++
	s.mu.Unlock()
}

// allowAll is a rate limiter that never throttles.
type allowAll struct{}

func (allowAll) Allow(ctx context.Context, channel string) (bool, error)     { return true, nil }
func (allowAll) Throttled(ctx context.Context, channel string) (bool, error) { return false, nil }

// denyAll is a rate limiter that always throttles.
type denyAll struct{}

func (denyAll) Allow(ctx context.Context, channel string) (bool, error)     { return false, nil }
func (denyAll) Throttled(ctx context.Context, channel string) (bool, error) { return true, nil }

func newBatcher(t *testing.T, source batch.ChannelSource, limiter batch.RateLimiter, queue batch.OverflowQueue, opts ...batch.BatcherOption) *batch.Batcher {
	t.Helper()

	b, err := batch.NewBatcher(source, limiter, queue, opts...)
	require.NoError(t, err)
	return b
}

func TestNewBatcher_Validation(t *testing.T) {
	t.Parallel()

	queue := overflow.NewQueue()
	source := newMockSource()

	_, err := batch.NewBatcher(nil, allowAll{}, queue)
	assert.ErrorIs(t, err, batch.ErrChannelSourceNil)

	_, err = batch.NewBatcher(source, nil, queue)
	assert.ErrorIs(t, err, batch.ErrRateLimiterNil)

	_, err = batch.NewBatcher(source, allowAll{}, nil)
	assert.ErrorIs(t, err, batch.ErrOverflowNil)
}

func TestBatcher_FlushOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	source := newMockSource()
	ch := &recChannel{}
	source.add("c1", ch)
	queue := overflow.NewQueue()
	b := newBatcher(t, source, allowAll{}, queue, batch.WithBatchSize(10))

	b.Send(ctx, "c1", []byte("n1"), message.PriorityNormal)
	b.Send(ctx, "c1", []byte("l1"), message.PriorityLow)
	b.Send(ctx, "c1", []byte("h1"), message.PriorityHigh)
	b.Send(ctx, "c1", []byte("n2"), message.PriorityNormal)

	b.Flush(ctx, "c1")

	require.Equal(t, 1, ch.frameCount(), "one batch, one framed transmit")
	assert.Equal(t, []string{"h1", "n1", "n2", "l1"}, ch.sentPayloads(t))
}

func TestBatcher_FlushTriggers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("batch size forces flush", func(t *testing.T) {
		t.Parallel()

		source := newMockSource()
		ch := &recChannel{}
		source.add("c1", ch)
		b := newBatcher(t, source, allowAll{}, overflow.NewQueue(), batch.WithBatchSize(3))

		b.Send(ctx, "c1", []byte("1"), message.PriorityNormal)
		b.Send(ctx, "c1", []byte("2"), message.PriorityNormal)
		assert.Zero(t, ch.frameCount())

		b.Send(ctx, "c1", []byte("3"), message.PriorityNormal)
		assert.Equal(t, 1, ch.frameCount())
	})

	t.Run("urgent forces immediate flush", func(t *testing.T) {
		t.Parallel()

		source := newMockSource()
		ch := &recChannel{}
		source.add("c1", ch)
		b := newBatcher(t, source, allowAll{}, overflow.NewQueue(), batch.WithBatchSize(10))

		b.Send(ctx, "c1", []byte("normal"), message.PriorityNormal)
		assert.Zero(t, ch.frameCount())

		b.Send(ctx, "c1", []byte("urgent"), message.PriorityUrgent)
		require.Equal(t, 1, ch.frameCount())
		assert.Equal(t, []string{"urgent", "normal"}, ch.sentPayloads(t))
	})

	t.Run("age-based flush via loop", func(t *testing.T) {
		t.Parallel()

		source := newMockSource()
		ch := &recChannel{}
		source.add("c1", ch)
		b := newBatcher(t, source, allowAll{}, overflow.NewQueue(),
			batch.WithBatchSize(10),
			batch.WithFlushTimeout(20*time.Millisecond),
			batch.WithFlushCheckInterval(5*time.Millisecond),
		)

		loopCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = b.Start(loopCtx) }()

		b.Send(ctx, "c1", []byte("slow"), message.PriorityNormal)

		assert.Eventually(t, func() bool {
			return ch.frameCount() == 1
		}, time.Second, 5*time.Millisecond, "aged batch should flush")

		require.NoError(t, b.Stop())
	})
}

func TestBatcher_OverflowRouting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("rate limited goes to overflow", func(t *testing.T) {
		t.Parallel()

		source := newMockSource()
		source.add("c1", &recChannel{})
		queue := overflow.NewQueue()
		b := newBatcher(t, source, denyAll{}, queue)

		b.Send(ctx, "c1", []byte("m"), message.PriorityUrgent)

		assert.Equal(t, 1, queue.Len("c1"))
		assert.Equal(t, int64(1), b.Stats().MessagesQueued)
	})

	t.Run("missing channel goes to overflow", func(t *testing.T) {
		t.Parallel()

		queue := overflow.NewQueue()
		b := newBatcher(t, newMockSource(), allowAll{}, queue)

		b.Send(ctx, "ghost", []byte("m"), message.PriorityUrgent)

		assert.Equal(t, 1, queue.Len("ghost"))
	})

	t.Run("unhealthy channel goes to overflow", func(t *testing.T) {
		t.Parallel()

		source := newMockSource()
		ch := &recChannel{}
		source.add("c1", ch)
		source.unhealthy["c1"] = true
		queue := overflow.NewQueue()
		b := newBatcher(t, source, allowAll{}, queue)

		b.Send(ctx, "c1", []byte("m"), message.PriorityUrgent)

		assert.Zero(t, ch.frameCount())
		assert.Equal(t, 1, queue.Len("c1"))
	})

	t.Run("transmit failure requeues whole batch", func(t *testing.T) {
		t.Parallel()

		source := newMockSource()
		source.add("c1", &recChannel{sendErr: errors.New("wire broke")})
		queue := overflow.NewQueue()
		b := newBatcher(t, source, allowAll{}, queue, batch.WithBatchSize(2))

		b.Send(ctx, "c1", []byte("1"), message.PriorityNormal)
		b.Send(ctx, "c1", []byte("2"), message.PriorityNormal)

		assert.Equal(t, 2, queue.Len("c1"))
		assert.Equal(t, 1, source.errored, "transmit failure recorded on the pool")
		assert.Equal(t, int64(1), b.Stats().FlushFailures)
	})
}

func TestBatcher_Discard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	source := newMockSource()
	ch := &recChannel{}
	source.add("c1", ch)
	b := newBatcher(t, source, allowAll{}, overflow.NewQueue())

	b.Send(ctx, "c1", []byte("m"), message.PriorityNormal)
	b.Discard("c1")
	b.Flush(ctx, "c1")

	assert.Zero(t, ch.frameCount())
}

func TestBatcher_ThrottleAndDrain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.Config{
		Ceiling:     2,
		Window:      50 * time.Millisecond,
		BackoffBase: 50 * time.Millisecond,
		BackoffCap:  time.Second,
	})
	require.NoError(t, err)

	source := newMockSource()
	ch := &recChannel{}
	source.add("c1", ch)
	queue := overflow.NewQueue()

	b := newBatcher(t, source, limiter, queue,
		batch.WithBatchSize(10),
		batch.WithDrainSubBatch(2),
		batch.WithDrainPause(60*time.Millisecond),
	)

	// Five urgent sends in a burst: the first two flush immediately, the
	// rest hit the ceiling and land in overflow.
	for _, payload := range []string{"u1", "u2", "u3", "u4", "u5"} {
		b.Send(ctx, "c1", []byte(payload), message.PriorityUrgent)
	}

	assert.Equal(t, []string{"u1", "u2"}, ch.sentPayloads(t))
	assert.Equal(t, 3, queue.Len("c1"))

	throttled, err := limiter.Throttled(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, throttled)

	// Wait out backoff and window, then drain. The pause between drain
	// sub-batches spans a window rollover, so all three get through.
	time.Sleep(150 * time.Millisecond)
	b.DrainQueued(ctx, "c1")

	assert.Equal(t, []string{"u1", "u2", "u3", "u4", "u5"}, ch.sentPayloads(t))
	assert.Zero(t, queue.Len("c1"))
}
