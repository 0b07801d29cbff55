package transport

import "context"

// Channel is a named handle to one logical subscription on the backend
// messaging service. Implementations must be safe for use from the
// optimizer's worker; they are never shared outside the pool that owns them.
type Channel interface {
	// Send transmits one framed payload. A batch is framed by the caller
	// before transmission, so Send sees a single opaque byte slice.
	Send(ctx context.Context, payload []byte) error

	// Probe sends a lightweight liveness message. The caller bounds it
	// with a context deadline; an expired deadline counts as failure.
	Probe(ctx context.Context) error

	// Close releases the underlying connection. Idempotent close is not
	// required; the pool guarantees a single Close per channel.
	Close() error
}

// Factory opens channels by name. It belongs to the application's transport
// layer; the optimizer consumes already-opened channels and uses a Factory
// only when a collaborator wires one in for reconnect flows.
type Factory interface {
	Open(ctx context.Context, name string) (Channel, error)
}
