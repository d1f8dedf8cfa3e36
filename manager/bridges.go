package manager

import (
	"context"

	"github.com/guileen/rpcpool/lifecycle"
	"github.com/guileen/rpcpool/pool"
)

var (
	_ pool.BlockingManager[lifecycle.Connection]   = (*BlockingBridge[lifecycle.Connection])(nil)
	_ pool.SuspendingManager[lifecycle.Connection] = (*SuspendingBridge[lifecycle.Connection])(nil)
)

// BlockingBridge exposes a PoolManager with synchronous method shapes.
// Connect and IsValid block the calling goroutine on network I/O; only the
// factory's per-endpoint connect timeout bounds them.
type BlockingBridge[C lifecycle.Connection] struct {
	m *PoolManager[C]
}

// Connect creates a new connection.
func (b *BlockingBridge[C]) Connect() (C, error) {
	return b.m.connect(context.Background())
}

// IsValid runs the connection's own probe and returns its verdict unchanged.
func (b *BlockingBridge[C]) IsValid(conn C) error {
	return b.m.isValid(context.Background(), conn)
}

// HasBroken returns the connection's own broken flag.
func (b *BlockingBridge[C]) HasBroken(conn C) bool {
	return b.m.hasBroken(conn)
}

// Close releases a connection the pool has evicted.
func (b *BlockingBridge[C]) Close(conn C) error {
	return b.m.close(conn)
}

// SuspendingBridge exposes a PoolManager with context-bound method shapes.
// Connect and IsValid return once ctx is done; a connect abandoned this way
// releases any socket it had opened.
type SuspendingBridge[C lifecycle.Connection] struct {
	m *PoolManager[C]
}

// Connect creates a new connection bound to ctx.
func (s *SuspendingBridge[C]) Connect(ctx context.Context) (C, error) {
	return s.m.connect(ctx)
}

// IsValid runs the connection's own probe and returns its verdict unchanged.
func (s *SuspendingBridge[C]) IsValid(ctx context.Context, conn C) error {
	return s.m.isValid(ctx, conn)
}

// HasBroken returns the connection's own broken flag.
func (s *SuspendingBridge[C]) HasBroken(conn C) bool {
	return s.m.hasBroken(conn)
}

// Close releases a connection the pool has evicted.
func (s *SuspendingBridge[C]) Close(conn C) error {
	return s.m.close(conn)
}
