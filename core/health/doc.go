// Package health maintains a decaying 0-100 liveness score per channel,
// driven by periodic probes against the abstract channel capability.
//
// # Scoring
//
// Every channel starts at 100. A successful probe nudges the score up by a
// small step (+5, capped at 100); a failed or timed-out probe drops it by a
// larger step (-20, floored at 0). The score classifies the channel:
//
//	Healthy   score >= 50
//	Degraded  20 <= score < 50 (usable but deprioritized)
//	Critical  score < 20 (eligible for removal)
//
// Once a channel is Critical and has failed more than the configured number
// of consecutive probes, the monitor signals its removal handler. The
// monitor records failures; it never retries a probe.
//
// # Usage
//
// The monitor discovers channels through a Source (typically the connection
// pool) and reports unrecoverable channels through a removal handler:
//
//	monitor := health.NewMonitor(pool,
//		health.WithProbeInterval(30*time.Second),
//		health.WithProbeTimeout(5*time.Second),
//		health.WithRemovalHandler(func(name string) {
//			_ = pool.Remove(context.Background(), name)
//		}),
//	)
//
//	g.Go(monitor.Run(ctx))
package health
