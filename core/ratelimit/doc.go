// Package ratelimit provides per-channel send-rate accounting with
// exponential backoff and pluggable storage backends.
//
// # Algorithm
//
// Each channel gets a fixed window (default 1 second) with a call ceiling
// (default 100). Every acquisition increments the window count; the first
// call over the ceiling puts the channel into backoff:
//
//	backoffUntil = now + min(base * 2^(count-ceiling), cap)
//
// The penalty scales with how far over the ceiling the offending call was,
// so a burst that is only slightly over the limit recovers quickly. While
// backoff is active every acquisition is rejected without incrementing the
// count. Backoff state survives window rollover; a fresh window starts only
// once the backoff deadline has passed.
//
// # Core Types
//
// Limiter implements the acquisition contract:
//   - Allow(ctx, channel): consume one send slot
//   - Throttled(ctx, channel): check backoff without consuming
//   - Reset(ctx, channel): administrative override
//
// Store abstracts the state backend. MemoryStore is the single-instance
// default with automatic stale-state cleanup; RedisStore shares limits
// across instances using an atomic server-side script.
//
// # Usage
//
//	store := ratelimit.NewMemoryStore()
//	limiter, err := ratelimit.NewLimiter(store, ratelimit.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	allowed, err := limiter.Allow(ctx, "chat:room-42")
//	if err != nil {
//		// store failure: treat as not allowed and queue the message
//	}
//	if !allowed {
//		// channel is over its ceiling or in backoff
//	}
//
// # Storage Backends
//
// MemoryStore (single instance): fast, no external dependencies, state is
// lost on restart. Call Start() (or use Run() with errgroup) to enable
// background cleanup of channels idle beyond the stale threshold.
//
// RedisStore (distributed): shares per-channel windows across processes.
// The full window/backoff decision runs inside a Lua script so concurrent
// instances never observe torn state.
package ratelimit
