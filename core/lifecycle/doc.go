// Package lifecycle tracks whether the host application is in the
// foreground or the background and fans state transitions out to
// subscribed listeners.
//
// Mobile and desktop hosts suspend or throttle backgrounded processes,
// so components such as connection pools and cleanup registries need a
// single place to learn about transitions and react (pause timers,
// release buffers, close idle connections). The Bus is that place: the
// platform layer reports transitions, everything else subscribes.
//
// # Basic Usage
//
//	bus := lifecycle.NewBus()
//
//	id := bus.Subscribe(func(ctx context.Context, state lifecycle.State) {
//	    if state == lifecycle.StateBackground {
//	        registry.OnBackground(ctx)
//	    }
//	})
//	defer bus.Unsubscribe(id)
//
//	// Platform layer reports transitions:
//	bus.Background(ctx)
//	bus.Foreground(ctx)
//
// # Semantics
//
// The bus starts in StateForeground. Reporting the current state again
// is a no-op; listeners only see genuine transitions. Listeners run
// synchronously in subscription order on the goroutine that reported
// the transition, so they must not block.
//
// Subscribe returns an ID that Unsubscribe accepts; unsubscribing an
// unknown ID is ignored. All methods are safe for concurrent use.
package lifecycle
