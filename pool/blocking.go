package pool

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guileen/rpcpool/logger"
)

// BlockingPool is a channel-backed pool whose Get blocks the calling goroutine
// until a connection is available, a new one is built, or ConnectionTimeout
// elapses.
type BlockingPool[C any] struct {
	config  Config
	manager BlockingManager[C]
	idle    chan C
	slots   chan struct{} // one token per live connection
	done    chan struct{} // closed by Close; wakes waiting Get calls
	mu      sync.RWMutex
	closed  bool
	stats   counters
	log     *slog.Logger
}

// NewBlockingPool creates a pool that builds connections through manager on
// demand, up to config.MaxConnections.
func NewBlockingPool[C any](config Config, manager BlockingManager[C]) *BlockingPool[C] {
	config.applyDefaults()
	return &BlockingPool[C]{
		config:  config,
		manager: manager,
		idle:    make(chan C, config.MaxConnections),
		slots:   make(chan struct{}, config.MaxConnections),
		done:    make(chan struct{}),
		log: logger.With(
			logger.Component("blocking_pool"),
			logger.String("pool", config.Name)),
	}
}

// Get checks out a connection. Idle connections are preferred; otherwise a
// new one is built while under capacity. Every checkout must pass IsValid.
// The returned Checkout is the only owner of the connection until it is
// released.
func (p *BlockingPool[C]) Get() (*Checkout[C], error) {
	if p.isClosed() {
		return nil, &PoolError{Op: "get", Err: ErrPoolClosed}
	}

	select {
	case conn := <-p.idle:
		return p.checkout(conn)
	default:
	}

	timer := time.NewTimer(p.config.ConnectionTimeout)
	defer timer.Stop()

	select {
	case conn := <-p.idle:
		return p.checkout(conn)
	case p.slots <- struct{}{}:
		return p.create()
	case <-p.done:
		return nil, &PoolError{Op: "get", Err: ErrPoolClosed}
	case <-timer.C:
		atomic.AddUint64(&p.stats.timeouts, 1)
		return nil, &PoolError{Op: "get", Err: ErrTimeout}
	}
}

// create builds a connection for a slot the caller already holds.
func (p *BlockingPool[C]) create() (*Checkout[C], error) {
	if p.isClosed() {
		<-p.slots
		return nil, &PoolError{Op: "get", Err: ErrPoolClosed}
	}

	conn, err := p.manager.Connect()
	if err != nil {
		<-p.slots
		atomic.AddUint64(&p.stats.connectErrors, 1)
		p.log.Warn("connect failed", logger.ErrorField(err))
		return nil, &PoolError{Op: "connect", Err: err}
	}
	atomic.AddUint64(&p.stats.created, 1)
	return p.checkout(conn)
}

func (p *BlockingPool[C]) checkout(conn C) (*Checkout[C], error) {
	atomic.AddUint64(&p.stats.healthChecks, 1)
	if err := p.manager.IsValid(conn); err != nil {
		atomic.AddUint64(&p.stats.failedHealth, 1)
		p.destroy(conn)
		p.log.Warn("checkout validation failed", logger.ErrorField(err))
		return nil, &PoolError{Op: "checkout", Err: err}
	}

	// Close may have run while the connection was being built or probed.
	if p.isClosed() {
		p.destroy(conn)
		return nil, &PoolError{Op: "get", Err: ErrPoolClosed}
	}

	atomic.AddUint64(&p.stats.checkouts, 1)
	return &Checkout[C]{conn: conn, pool: p}, nil
}

// put returns a connection. A connection reporting HasBroken is closed and
// its slot freed; it is never reused.
func (p *BlockingPool[C]) put(conn C) {
	if p.manager.HasBroken(conn) {
		atomic.AddUint64(&p.stats.broken, 1)
		p.destroy(conn)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.destroy(conn)
		return
	}

	select {
	case p.idle <- conn:
	default:
		p.destroy(conn)
	}
}

func (p *BlockingPool[C]) destroy(conn C) {
	if err := p.manager.Close(conn); err != nil {
		p.log.Debug("close failed", logger.ErrorField(err))
	}
	atomic.AddUint64(&p.stats.closed, 1)
	<-p.slots
}

func (p *BlockingPool[C]) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Close closes every idle connection and fails pending Get calls. Connections
// still checked out are closed when they are released.
func (p *BlockingPool[C]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	for {
		select {
		case conn := <-p.idle:
			p.destroy(conn)
		default:
			return
		}
	}
}

// Name returns the configured pool name.
func (p *BlockingPool[C]) Name() string {
	return p.config.Name
}

// Stats returns current pool statistics
func (p *BlockingPool[C]) Stats() Stats {
	s := Stats{
		MaxConnections: p.config.MaxConnections,
		Total:          len(p.slots),
		Idle:           len(p.idle),
	}
	s.InUse = s.Total - s.Idle
	p.stats.fill(&s)
	return s
}

// Checkout is a connection taken from a BlockingPool. Only the first call to
// Release or Discard has any effect, so a connection cannot be handed back
// twice.
type Checkout[C any] struct {
	conn C
	pool *BlockingPool[C]
	once sync.Once
}

// Value returns the checked-out connection.
func (c *Checkout[C]) Value() C {
	return c.conn
}

// Release hands the connection back to the pool.
func (c *Checkout[C]) Release() {
	c.once.Do(func() {
		c.pool.put(c.conn)
	})
}

// Discard closes the connection without returning it.
func (c *Checkout[C]) Discard() {
	c.once.Do(func() {
		c.pool.destroy(c.conn)
	})
}
