// Package transport defines the abstract channel capability consumed by the
// delivery optimizer. The optimizer never opens connections itself; it
// receives already-opened channels and drives them through this interface.
//
// # Core Types
//
// Channel is a named, long-lived, bidirectional handle to one logical
// subscription on a backend messaging service:
//
//	type Channel interface {
//		Send(ctx context.Context, payload []byte) error
//		Probe(ctx context.Context) error
//		Close() error
//	}
//
// Factory opens channels by name and is owned by the application's
// transport layer; the optimizer only consumes its output.
//
// # Error Handling
//
// Transport failures are opaque to the optimizer. Wrap them with NewError
// so callers can distinguish the failed operation while still unwrapping
// the underlying cause:
//
//	if err := ch.Send(ctx, payload); err != nil {
//		return transport.NewError(transport.OpSend, name, err)
//	}
package transport
