// Package pool contains the two pool back ends connections are checked out
// from: BlockingPool, whose Get blocks the calling goroutine, and
// SuspendingPool, whose Acquire is bound to the caller's context.
//
// Neither back end knows how connections are built or probed. They consume a
// manager through the narrow contracts below and never reinterpret its
// verdicts: a failed IsValid fails the checkout with that error, and a
// connection reporting HasBroken is closed instead of being reused.
package pool

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BlockingManager is what BlockingPool needs from a connection manager.
type BlockingManager[C any] interface {
	Connect() (C, error)
	IsValid(conn C) error
	HasBroken(conn C) bool
	Close(conn C) error
}

// SuspendingManager is what SuspendingPool needs from a connection manager.
type SuspendingManager[C any] interface {
	Connect(ctx context.Context) (C, error)
	IsValid(ctx context.Context, conn C) error
	HasBroken(conn C) bool
	Close(conn C) error
}

var (
	// ErrPoolClosed is returned by checkouts on a closed pool, including
	// checkouts that were waiting when Close ran.
	ErrPoolClosed = errors.New("connection pool is closed")
	// ErrTimeout is returned when no connection became available within
	// Config.ConnectionTimeout.
	ErrTimeout = errors.New("connection request timed out")
)

// PoolError wraps a failure from a pool operation. Err is the manager's
// error, unchanged.
type PoolError struct {
	Op  string
	Err error
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("connection pool error during %s: %v", e.Op, e.Err)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

// IsPoolError checks if an error is a connection pool error
func IsPoolError(err error) bool {
	var target *PoolError
	return errors.As(err, &target)
}

// Config defines the pool settings both back ends understand.
type Config struct {
	Name              string
	MaxConnections    int
	ConnectionTimeout time.Duration // how long a checkout may wait for a free slot
}

func (c *Config) applyDefaults() {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 10
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 30 * time.Second
	}
	if c.Name == "" {
		c.Name = "default"
	}
}

// Stats contains statistics about a pool
type Stats struct {
	MaxConnections int `json:"max_connections"`
	Total          int `json:"total"`  // live connections, idle and in use
	Idle           int `json:"idle"`   // connections waiting in the pool
	InUse          int `json:"in_use"` // connections checked out

	Checkouts     uint64 `json:"checkouts"`      // successful checkouts
	Created       uint64 `json:"created"`        // connections built by the manager
	ConnectErrors uint64 `json:"connect_errors"` // failed Connect calls
	Timeouts      uint64 `json:"timeouts"`       // checkouts that gave up waiting
	HealthChecks  uint64 `json:"health_checks"`  // IsValid calls
	FailedHealth  uint64 `json:"failed_health"`  // IsValid failures
	Broken        uint64 `json:"broken"`         // returned connections reporting HasBroken
	Closed        uint64 `json:"closed"`         // connections closed by the pool
}
