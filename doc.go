// Package channelkit optimizes realtime message delivery over pooled
// channels. It batches outgoing messages, rate-limits each channel with
// exponential backoff, parks rejected messages in a bounded overflow
// queue, scores channel health with periodic probes, and reclaims
// memory-holding resources under pressure.
//
// The package is organized in layers:
//
//   - core/message: prioritized message values and stable ordering
//   - core/transport: the Channel and Factory interfaces all transports implement
//   - core/pool: the connection pool with health-aware eviction
//   - core/health: probe-driven health scoring and removal of dead channels
//   - core/ratelimit: fixed-window limiting with escalating backoff
//   - core/overflow: bounded, priority-evicting message queue
//   - core/batch: size- and age-triggered batch flushing
//   - core/cleanup: prioritized resource disposal under memory pressure
//   - core/lifecycle: foreground/background transitions
//   - integration/ws: gorilla/websocket transport
//
// Each core package stands alone; the Optimizer in this package wires
// them together and keeps per-channel state consistent across them.
//
// # Quick Start
//
//	dialer, err := ws.NewDialer(ws.Config{BaseURL: "wss://push.example.com/channels"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	opt, err := channelkit.New(
//		channelkit.WithFactory(dialer),
//		channelkit.WithLogger(slog.Default()),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	go opt.Run(ctx)
//	defer opt.Close(context.Background())
//
//	if err := opt.Connect(ctx, "user:42", cleanup.PriorityNormal); err != nil {
//		log.Fatal(err)
//	}
//
//	opt.Send(ctx, "user:42", payload, message.PriorityUrgent)
package channelkit
