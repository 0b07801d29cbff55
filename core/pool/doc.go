// Package pool owns the set of active channels, applies the capacity limit,
// and prunes idle or unhealthy channels on a fixed period.
//
// # Capacity and Eviction
//
// The pool holds at most MaxSize channels (default 50). Registering into a
// full pool evicts the least healthy channel first, breaking ties by least
// recent use, so a cold unhealthy channel always yields its slot before a
// busy healthy one. Registration fails with ErrCapacityExceeded only when
// no slot can be freed.
//
// # Pruning
//
// A background loop (default every 60 seconds) removes channels that have
// been idle longer than the idle threshold (default 10 minutes) or whose
// health score fell below the health floor (default 20). Pruning and
// removal errors are logged, never propagated; best-effort cleanup must not
// crash the pool.
//
// # Health Wiring
//
// Health scores come from an external HealthSource (the health monitor).
// The monitor discovers channels through the pool's ProbeTargets method, so
// the two are bound after construction:
//
//	p := pool.New()
//	monitor := health.NewMonitor(p)
//	p.SetHealthSource(monitor)
//
// Without a health source every channel is treated as fully healthy.
//
// # Usage
//
//	if err := p.Register(ctx, "chat:room-42", ch); err != nil {
//		// pool full and nothing evictable
//	}
//
//	ch, err := p.Get("chat:room-42")
//	if errors.Is(err, transport.ErrNotFound) {
//		// channel was pruned or never registered
//	}
//
//	g.Go(p.Run(ctx)) // periodic pruning
package pool
