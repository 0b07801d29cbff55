// Package cleanup tracks disposable resources (channels, buffers, timers,
// watchers) tagged with priority and a memory estimate, and reclaims them
// in tiers when memory pressure rises or the application moves to the
// background.
//
// # Resources
//
// Every resource carries a single polymorphic Dispose capability via the
// Disposer interface. Disposal is best-effort: success and failure both
// remove the entry from the registry, failures are logged and never
// retried.
//
// # Pressure Tiers
//
// The registry walks a three-state machine driven by the estimated byte
// usage (by default the sum of registered estimates, overridable with an
// application-provided estimator):
//
//	Normal -> SoftPressure  (usage >= soft threshold, gentle reclaim)
//	       -> HardPressure  (usage >= hard threshold, aggressive reclaim)
//	       -> Normal        (usage back below the soft threshold)
//
// A gentle reclaim disposes low-priority resources and anything unused
// beyond the staleness window; an aggressive reclaim disposes everything
// except critical. Reclaim passes are mutually exclusive: a second call
// while one runs is a no-op.
//
// # Teardown
//
// DisposeAll releases resources in ascending priority, so critical
// resources (for example active-session watchers) are the last to release
// state that others may still reference during shutdown.
//
// # Usage
//
//	registry := cleanup.NewRegistry(
//		cleanup.WithSoftThreshold(50<<20),
//		cleanup.WithHardThreshold(100<<20),
//	)
//
//	id, err := registry.Register(cleanup.KindBuffer, cleanup.PriorityLow, 4096,
//		cleanup.DisposerFunc(func(ctx context.Context) error {
//			buf.Release()
//			return nil
//		}))
//
//	g.Go(registry.Run(ctx)) // periodic pressure checks
package cleanup
