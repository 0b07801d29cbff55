package overflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/channelkit/core/message"
	"github.com/dmitrymomot/channelkit/core/overflow"
)

func TestQueue_Enqueue(t *testing.T) {
	t.Parallel()

	t.Run("never grows past capacity", func(t *testing.T) {
		t.Parallel()

		queue := overflow.NewQueue(overflow.WithCapacity(3))

		for i := 0; i < 10; i++ {
			queue.Enqueue("c1", message.New([]byte("m"), message.PriorityNormal))
		}

		assert.Equal(t, 3, queue.Len("c1"))
		assert.Equal(t, int64(7), queue.Stats().Evicted)
	})

	t.Run("evicts lowest priority before oldest", func(t *testing.T) {
		t.Parallel()

		queue := overflow.NewQueue(overflow.WithCapacity(3))

		queue.Enqueue("c1", message.New([]byte("old-high"), message.PriorityHigh))
		queue.Enqueue("c1", message.New([]byte("low"), message.PriorityLow))
		queue.Enqueue("c1", message.New([]byte("normal"), message.PriorityNormal))

		// Queue is full; the low entry goes, not the oldest (high) one.
		queue.Enqueue("c1", message.New([]byte("urgent"), message.PriorityUrgent))

		drained := queue.Drain("c1")
		require.Len(t, drained, 3)
		payloads := []string{string(drained[0].Payload), string(drained[1].Payload), string(drained[2].Payload)}
		assert.Equal(t, []string{"urgent", "old-high", "normal"}, payloads)
	})

	t.Run("falls back to oldest on uniform priority", func(t *testing.T) {
		t.Parallel()

		queue := overflow.NewQueue(overflow.WithCapacity(2))

		queue.Enqueue("c1", message.New([]byte("first"), message.PriorityNormal))
		queue.Enqueue("c1", message.New([]byte("second"), message.PriorityNormal))
		queue.Enqueue("c1", message.New([]byte("third"), message.PriorityNormal))

		drained := queue.Drain("c1")
		require.Len(t, drained, 2)
		assert.Equal(t, "second", string(drained[0].Payload))
		assert.Equal(t, "third", string(drained[1].Payload))
	})
}

func TestQueue_Drain(t *testing.T) {
	t.Parallel()

	t.Run("returns priority order with stable ties", func(t *testing.T) {
		t.Parallel()

		queue := overflow.NewQueue()

		queue.Enqueue("c1", message.New([]byte("n1"), message.PriorityNormal))
		queue.Enqueue("c1", message.New([]byte("u1"), message.PriorityUrgent))
		queue.Enqueue("c1", message.New([]byte("n2"), message.PriorityNormal))
		queue.Enqueue("c1", message.New([]byte("h1"), message.PriorityHigh))

		drained := queue.Drain("c1")
		require.Len(t, drained, 4)
		assert.Equal(t, "u1", string(drained[0].Payload))
		assert.Equal(t, "h1", string(drained[1].Payload))
		assert.Equal(t, "n1", string(drained[2].Payload))
		assert.Equal(t, "n2", string(drained[3].Payload))

		assert.Zero(t, queue.Len("c1"), "drain empties the channel")
	})

	t.Run("empty channel returns nil", func(t *testing.T) {
		t.Parallel()

		queue := overflow.NewQueue()
		assert.Nil(t, queue.Drain("missing"))
	})
}

func TestQueue_Expiry(t *testing.T) {
	t.Parallel()

	queue := overflow.NewQueue(overflow.WithMaxAge(30 * time.Millisecond))

	queue.Enqueue("c1", message.New([]byte("doomed"), message.PriorityHigh))
	time.Sleep(50 * time.Millisecond)
	queue.Enqueue("c1", message.New([]byte("fresh"), message.PriorityNormal))

	drained := queue.Drain("c1")
	require.Len(t, drained, 1)
	assert.Equal(t, "fresh", string(drained[0].Payload))
	assert.Equal(t, int64(1), queue.Stats().Expired)
}

func TestQueue_Remove(t *testing.T) {
	t.Parallel()

	queue := overflow.NewQueue()
	queue.Enqueue("c1", message.New([]byte("m"), message.PriorityNormal))

	queue.Remove("c1")
	assert.Zero(t, queue.Len("c1"))
	assert.Nil(t, queue.Drain("c1"))
}

func TestQueue_PurgeLoop(t *testing.T) {
	t.Parallel()

	queue := overflow.NewQueue(
		overflow.WithMaxAge(10*time.Millisecond),
		overflow.WithPurgeInterval(10*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = queue.Start(ctx) }()

	queue.Enqueue("c1", message.New([]byte("m"), message.PriorityNormal))

	assert.Eventually(t, func() bool {
		return queue.Stats().QueuedMessages == 0
	}, time.Second, 10*time.Millisecond, "purge loop should expire the entry")

	require.NoError(t, queue.Stop())
}
