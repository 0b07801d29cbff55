package lifecycle_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/channelkit/core/lifecycle"
)

func TestBus_Transitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("starts in foreground", func(t *testing.T) {
		t.Parallel()

		bus := lifecycle.NewBus()
		assert.Equal(t, lifecycle.StateForeground, bus.State())
	})

	t.Run("notifies listeners on transition", func(t *testing.T) {
		t.Parallel()

		bus := lifecycle.NewBus()

		var seen []lifecycle.State
		bus.Subscribe(func(ctx context.Context, state lifecycle.State) {
			seen = append(seen, state)
		})

		bus.Background(ctx)
		bus.Foreground(ctx)

		assert.Equal(t, []lifecycle.State{lifecycle.StateBackground, lifecycle.StateForeground}, seen)
		assert.Equal(t, lifecycle.StateForeground, bus.State())
	})

	t.Run("repeated state is a no-op", func(t *testing.T) {
		t.Parallel()

		bus := lifecycle.NewBus()

		calls := 0
		bus.Subscribe(func(ctx context.Context, state lifecycle.State) {
			calls++
		})

		bus.Foreground(ctx)
		bus.Background(ctx)
		bus.Background(ctx)

		assert.Equal(t, 1, calls)
	})

	t.Run("listeners run in subscription order", func(t *testing.T) {
		t.Parallel()

		bus := lifecycle.NewBus()

		var order []string
		bus.Subscribe(func(ctx context.Context, state lifecycle.State) {
			order = append(order, "first")
		})
		bus.Subscribe(func(ctx context.Context, state lifecycle.State) {
			order = append(order, "second")
		})

		bus.Background(ctx)

		assert.Equal(t, []string{"first", "second"}, order)
	})
}

func TestBus_Subscriptions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("unsubscribe stops notifications", func(t *testing.T) {
		t.Parallel()

		bus := lifecycle.NewBus()

		calls := 0
		id := bus.Subscribe(func(ctx context.Context, state lifecycle.State) {
			calls++
		})

		bus.Background(ctx)
		bus.Unsubscribe(id)
		bus.Foreground(ctx)

		assert.Equal(t, 1, calls)
	})

	t.Run("nil listener ignored", func(t *testing.T) {
		t.Parallel()

		bus := lifecycle.NewBus()
		id := bus.Subscribe(nil)
		assert.Equal(t, uuid.Nil, id)

		// Transition must not panic with no real listeners.
		bus.Background(ctx)
	})

	t.Run("unknown id ignored", func(t *testing.T) {
		t.Parallel()

		bus := lifecycle.NewBus()
		bus.Unsubscribe(uuid.New())
	})
}

func TestBus_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	bus := lifecycle.NewBus()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id := bus.Subscribe(func(ctx context.Context, state lifecycle.State) {})
			bus.Unsubscribe(id)
		}()
		go func() {
			defer wg.Done()
			bus.Background(ctx)
			bus.Foreground(ctx)
			_ = bus.State()
		}()
	}
	wg.Wait()
}
