package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type testConn struct {
	id      int
	invalid atomic.Bool
	broken  atomic.Bool
	closed  atomic.Bool
}

var errProbe = errors.New("probe failed")

// testManager implements both manager shapes over testConn.
type testManager struct {
	mu         sync.Mutex
	next       int
	connectErr error
	conns      []*testConn
}

func (m *testManager) connect() (*testConn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	m.next++
	c := &testConn{id: m.next}
	m.conns = append(m.conns, c)
	return c, nil
}

func (m *testManager) setConnectErr(err error) {
	m.mu.Lock()
	m.connectErr = err
	m.mu.Unlock()
}

func (m *testManager) created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next
}

func (m *testManager) isValid(c *testConn) error {
	if c.invalid.Load() {
		return errProbe
	}
	return nil
}

func (m *testManager) Close(c *testConn) error {
	c.closed.Store(true)
	return nil
}

func (m *testManager) HasBroken(c *testConn) bool { return c.broken.Load() }

type blockingTestManager struct{ *testManager }

func (m blockingTestManager) Connect() (*testConn, error)  { return m.connect() }
func (m blockingTestManager) IsValid(c *testConn) error     { return m.isValid(c) }

type suspendingTestManager struct{ *testManager }

func (m suspendingTestManager) Connect(ctx context.Context) (*testConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.connect()
}

func (m suspendingTestManager) IsValid(ctx context.Context, c *testConn) error {
	return m.isValid(c)
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.applyDefaults()
	assert.Equal(t, 10, c.MaxConnections)
	assert.Equal(t, 30*time.Second, c.ConnectionTimeout)
	assert.Equal(t, "default", c.Name)
}

func TestBlockingPoolReusesHealthyConnection(t *testing.T) {
	m := &testManager{}
	p := NewBlockingPool[*testConn](Config{MaxConnections: 2}, blockingTestManager{m})
	defer p.Close()

	co1, err := p.Get()
	require.NoError(t, err)
	c1 := co1.Value()
	co1.Release()

	co2, err := p.Get()
	require.NoError(t, err)
	assert.Same(t, c1, co2.Value())
	assert.Equal(t, 1, m.created())

	stats := p.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.InUse)
	assert.Equal(t, uint64(2), stats.Checkouts)
	assert.Equal(t, uint64(2), stats.HealthChecks)
}

func TestBlockingPoolEvictsBrokenConnection(t *testing.T) {
	m := &testManager{}
	p := NewBlockingPool[*testConn](Config{MaxConnections: 1}, blockingTestManager{m})
	defer p.Close()

	co1, err := p.Get()
	require.NoError(t, err)
	c1 := co1.Value()
	c1.broken.Store(true)
	co1.Release()
	assert.True(t, c1.closed.Load())

	co2, err := p.Get()
	require.NoError(t, err)
	assert.NotSame(t, c1, co2.Value())
	assert.Equal(t, uint64(1), p.Stats().Broken)
}

func TestBlockingPoolValidationFailure(t *testing.T) {
	m := &testManager{}
	p := NewBlockingPool[*testConn](Config{MaxConnections: 1}, blockingTestManager{m})
	defer p.Close()

	co1, err := p.Get()
	require.NoError(t, err)
	c1 := co1.Value()
	co1.Release()
	c1.invalid.Store(true)

	_, err = p.Get()
	require.Error(t, err)
	assert.ErrorIs(t, err, errProbe)

	var perr *PoolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "checkout", perr.Op)
	assert.True(t, c1.closed.Load())

	// the slot was freed, so a fresh connection can be built
	co2, err := p.Get()
	require.NoError(t, err)
	assert.NotSame(t, c1, co2.Value())
}

func TestBlockingPoolConnectError(t *testing.T) {
	m := &testManager{}
	connectErr := errors.New("all endpoints failed")
	m.setConnectErr(connectErr)
	p := NewBlockingPool[*testConn](Config{MaxConnections: 1}, blockingTestManager{m})
	defer p.Close()

	_, err := p.Get()
	assert.ErrorIs(t, err, connectErr)
	assert.Equal(t, 0, p.Stats().Total)

	m.setConnectErr(nil)
	_, err = p.Get()
	assert.NoError(t, err)
}

func TestBlockingPoolTimeout(t *testing.T) {
	m := &testManager{}
	p := NewBlockingPool[*testConn](Config{MaxConnections: 1, ConnectionTimeout: 20 * time.Millisecond}, blockingTestManager{m})
	defer p.Close()

	_, err := p.Get()
	require.NoError(t, err)

	_, err = p.Get()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, uint64(1), p.Stats().Timeouts)
}

func TestBlockingPoolClose(t *testing.T) {
	m := &testManager{}
	p := NewBlockingPool[*testConn](Config{MaxConnections: 2}, blockingTestManager{m})

	idle, err := p.Get()
	require.NoError(t, err)
	leased, err := p.Get()
	require.NoError(t, err)
	idle.Release()

	p.Close()
	assert.True(t, idle.Value().closed.Load())
	assert.False(t, leased.Value().closed.Load())

	leased.Release()
	assert.True(t, leased.Value().closed.Load())

	_, err = p.Get()
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestBlockingPoolCloseWakesWaiter(t *testing.T) {
	m := &testManager{}
	p := NewBlockingPool[*testConn](Config{MaxConnections: 1, ConnectionTimeout: 5 * time.Second}, blockingTestManager{m})

	held, err := p.Get()
	require.NoError(t, err)

	type result struct {
		co  *Checkout[*testConn]
		err error
	}
	waiter := make(chan result, 1)
	go func() {
		co, err := p.Get()
		waiter <- result{co, err}
	}()

	// give the waiter time to block on the full pool
	time.Sleep(20 * time.Millisecond)
	p.Close()
	held.Discard()

	select {
	case r := <-waiter:
		assert.Nil(t, r.co)
		assert.ErrorIs(t, r.err, ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("Get still blocked after Close")
	}
	assert.Equal(t, 1, m.created())
	assert.Equal(t, 0, p.Stats().Total)
}

func TestBlockingPoolReleaseIsIdempotent(t *testing.T) {
	m := &testManager{}
	p := NewBlockingPool[*testConn](Config{MaxConnections: 2}, blockingTestManager{m})
	defer p.Close()

	co, err := p.Get()
	require.NoError(t, err)
	co.Release()
	co.Release()
	co.Discard()
	assert.Equal(t, 1, p.Stats().Idle)

	a, err := p.Get()
	require.NoError(t, err)
	b, err := p.Get()
	require.NoError(t, err)
	assert.NotSame(t, a.Value(), b.Value())
	assert.Equal(t, 2, m.created())
}

func TestBlockingPoolConcurrentGet(t *testing.T) {
	m := &testManager{}
	p := NewBlockingPool[*testConn](Config{MaxConnections: 4, ConnectionTimeout: time.Second}, blockingTestManager{m})
	defer p.Close()

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			co, err := p.Get()
			if err != nil {
				return err
			}
			time.Sleep(time.Millisecond)
			co.Release()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, m.created(), 4)
}

func newSuspendingPool(t *testing.T, config Config, m *testManager) *SuspendingPool[*testConn] {
	t.Helper()
	p, err := NewSuspendingPool[*testConn](config, suspendingTestManager{m})
	require.NoError(t, err)
	return p
}

func TestSuspendingPoolReusesHealthyConnection(t *testing.T) {
	m := &testManager{}
	p := newSuspendingPool(t, Config{MaxConnections: 2}, m)
	defer p.Close()

	l1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c1 := l1.Value()
	l1.Release()
	l1.Release()

	l2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, c1, l2.Value())
	assert.Equal(t, 1, m.created())

	stats := p.Stats()
	assert.Equal(t, 1, stats.InUse)
	assert.Equal(t, uint64(2), stats.Checkouts)
	l2.Release()
}

func TestSuspendingPoolEvictsBrokenConnection(t *testing.T) {
	m := &testManager{}
	p := newSuspendingPool(t, Config{MaxConnections: 1}, m)
	defer p.Close()

	l1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c1 := l1.Value()
	c1.broken.Store(true)
	l1.Release()

	assert.Eventually(t, c1.closed.Load, time.Second, 5*time.Millisecond)

	l2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, c1, l2.Value())
	assert.Equal(t, uint64(1), p.Stats().Broken)
	l2.Release()
}

func TestSuspendingPoolValidationFailure(t *testing.T) {
	m := &testManager{}
	p := newSuspendingPool(t, Config{MaxConnections: 1}, m)
	defer p.Close()

	l1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c1 := l1.Value()
	l1.Release()
	c1.invalid.Store(true)

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errProbe)

	var perr *PoolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "checkout", perr.Op)
	assert.Eventually(t, c1.closed.Load, time.Second, 5*time.Millisecond)
}

func TestSuspendingPoolConnectError(t *testing.T) {
	m := &testManager{}
	connectErr := errors.New("all endpoints failed")
	m.setConnectErr(connectErr)
	p := newSuspendingPool(t, Config{MaxConnections: 1}, m)
	defer p.Close()

	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, connectErr)
	assert.Equal(t, uint64(1), p.Stats().ConnectErrors)
}

func TestSuspendingPoolTimeoutAndCancel(t *testing.T) {
	m := &testManager{}
	p := newSuspendingPool(t, Config{MaxConnections: 1, ConnectionTimeout: 20 * time.Millisecond}, m)
	defer p.Close()

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer lease.Release()

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSuspendingPoolClose(t *testing.T) {
	m := &testManager{}
	p := newSuspendingPool(t, Config{MaxConnections: 1}, m)

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c := lease.Value()
	lease.Release()

	p.Close()
	assert.True(t, c.closed.Load())

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}
