// Package batch accumulates outbound messages per channel and decides when
// to flush them as one framed transmission.
//
// # Flush Conditions
//
// A channel's batch is flushed when any of the following holds:
//
//   - the batch reaches the configured size (default 10)
//   - an urgent message arrives
//   - the batch age exceeds the flush timeout (default 100ms, checked by
//     the background flush loop)
//
// Before transmission the batch is sorted by priority descending with
// enqueue order preserved on ties, then framed as a single JSON payload.
//
// # Failure Routing
//
// Send is fire-and-forget: rate-limited, failed, and unroutable messages
// land in the overflow queue instead of surfacing as errors. The batcher
// never marks channel health; probe results own that.
//
// # Draining
//
// After a channel reconnects or its backoff clears, DrainQueued resubmits
// the channel's overflow backlog in priority order, in small sub-batches
// with a short pause between them so the drain itself does not immediately
// re-trigger the rate limiter.
//
// # Usage
//
//	batcher, err := batch.NewBatcher(pool, limiter, queue,
//		batch.WithBatchSize(10),
//		batch.WithFlushTimeout(100*time.Millisecond),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	batcher.Send(ctx, "chat:room-42", payload, message.PriorityHigh)
//
//	g.Go(batcher.Run(ctx)) // age-based flushing
package batch
