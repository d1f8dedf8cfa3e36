// Package manager adapts a lifecycle.Factory to the method shapes of both the
// blocking and the suspending pool back ends.
//
// The failover and lifecycle logic lives once, in the factory and in the
// connection itself; the bridges returned by Blocking and Suspending only
// forward to it. A PoolManager is read-only after New and may be shared by
// every pool worker without locking.
package manager

import (
	"context"

	"github.com/guileen/rpcpool/lifecycle"
)

// PoolManager wraps one connection factory.
type PoolManager[C lifecycle.Connection] struct {
	factory lifecycle.Factory[C]
}

// New returns a PoolManager over factory.
func New[C lifecycle.Connection](factory lifecycle.Factory[C]) *PoolManager[C] {
	if factory == nil {
		panic("manager: nil factory")
	}
	return &PoolManager[C]{factory: factory}
}

// Blocking returns the bridge for back ends whose checkout blocks the
// calling goroutine.
func (m *PoolManager[C]) Blocking() *BlockingBridge[C] {
	return &BlockingBridge[C]{m: m}
}

// Suspending returns the bridge for back ends whose checkout is bound to a
// caller context and returns as soon as that context is done.
func (m *PoolManager[C]) Suspending() *SuspendingBridge[C] {
	return &SuspendingBridge[C]{m: m}
}

func (m *PoolManager[C]) connect(ctx context.Context) (C, error) {
	return m.factory.Create(ctx)
}

func (m *PoolManager[C]) isValid(ctx context.Context, conn C) error {
	return conn.IsValid(ctx)
}

func (m *PoolManager[C]) hasBroken(conn C) bool {
	return conn.HasBroken()
}

func (m *PoolManager[C]) close(conn C) error {
	return conn.Close()
}
