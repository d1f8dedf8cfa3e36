// Package lifecycle defines the capability contracts a pooled RPC connection
// must satisfy and the factory shape pool managers build connections from.
package lifecycle

import "context"

// Connection is the health-check contract of a managed connection.
//
// IsValid performs an explicit probe, usually a lightweight round trip, and
// returns the client's own error on any fault. HasBroken must be cheap and
// side-effect free; pools call it when a connection is handed back. Close
// releases the underlying transport once the pool evicts the connection.
type Connection interface {
	IsValid(ctx context.Context) error
	HasBroken() bool
	Close() error
}

// Builder constructs a client from an input and output codec pair.
// It must not perform I/O; any handshake belongs to the transport phase.
type Builder[I, O any, C Connection] func(in I, out O) C

// Factory produces fully constructed, ready-to-use connections.
type Factory[C Connection] interface {
	Create(ctx context.Context) (C, error)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc[C Connection] func(ctx context.Context) (C, error)

// Create calls f(ctx).
func (f FactoryFunc[C]) Create(ctx context.Context) (C, error) {
	return f(ctx)
}

// NeverBroken can be embedded by clients that have no cheap way of detecting a
// broken transport.
type NeverBroken struct{}

// HasBroken always reports false.
func (NeverBroken) HasBroken() bool { return false }
