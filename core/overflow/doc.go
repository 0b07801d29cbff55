// Package overflow provides the bounded holding area for messages that
// could not be sent immediately, one FIFO per channel with priority-aware
// eviction.
//
// # Eviction
//
// Each channel's queue is capacity-bounded (default 1000 entries). When a
// full queue receives another message, the oldest entry among those with
// the lowest priority is evicted, so an urgent backlog survives a flood of
// low-priority traffic. Entries older than the max age (default 5 minutes)
// are purged opportunistically on access and by the background purge loop.
//
// # Usage
//
//	queue := overflow.NewQueue(
//		overflow.WithCapacity(1000),
//		overflow.WithMaxAge(5*time.Minute),
//	)
//
//	queue.Enqueue("chat:room-42", msg)
//
//	// after the channel recovers:
//	for _, msg := range queue.Drain("chat:room-42") {
//		// resubmit in priority order
//	}
//
// Start the purge loop alongside the other background tasks:
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(queue.Run(ctx))
package overflow
