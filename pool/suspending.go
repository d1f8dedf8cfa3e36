package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jackc/puddle/v2"

	"github.com/guileen/rpcpool/logger"
)

// SuspendingPool is a puddle-backed pool whose checkout is bound to the
// caller's context: Acquire returns as soon as ctx is done, whether it was
// waiting for a slot, for Connect or for IsValid.
type SuspendingPool[C any] struct {
	config  Config
	manager SuspendingManager[C]
	pool    *puddle.Pool[C]
	stats   counters
	log     *slog.Logger
}

// NewSuspendingPool creates a pool whose constructor is manager.Connect and
// whose destructor is manager.Close.
func NewSuspendingPool[C any](config Config, manager SuspendingManager[C]) (*SuspendingPool[C], error) {
	config.applyDefaults()
	p := &SuspendingPool[C]{
		config:  config,
		manager: manager,
		log: logger.With(
			logger.Component("suspending_pool"),
			logger.String("pool", config.Name)),
	}

	pp, err := puddle.NewPool(&puddle.Config[C]{
		Constructor: p.construct,
		Destructor:  p.destruct,
		MaxSize:     int32(config.MaxConnections),
	})
	if err != nil {
		return nil, err
	}
	p.pool = pp
	return p, nil
}

func (p *SuspendingPool[C]) construct(ctx context.Context) (C, error) {
	conn, err := p.manager.Connect(ctx)
	if err != nil {
		atomic.AddUint64(&p.stats.connectErrors, 1)
		p.log.Warn("connect failed", logger.ErrorField(err))
		return conn, err
	}
	atomic.AddUint64(&p.stats.created, 1)
	return conn, nil
}

func (p *SuspendingPool[C]) destruct(conn C) {
	if err := p.manager.Close(conn); err != nil {
		p.log.Debug("close failed", logger.ErrorField(err))
	}
	atomic.AddUint64(&p.stats.closed, 1)
}

// Acquire checks out a connection. The wait for a free slot is additionally
// bounded by ConnectionTimeout. Every checkout must pass IsValid.
func (p *SuspendingPool[C]) Acquire(ctx context.Context) (*Lease[C], error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.config.ConnectionTimeout)
	defer cancel()

	res, err := p.pool.Acquire(waitCtx)
	if err != nil {
		switch {
		case errors.Is(err, puddle.ErrClosedPool):
			return nil, &PoolError{Op: "acquire", Err: ErrPoolClosed}
		case waitCtx.Err() != nil && errors.Is(err, waitCtx.Err()):
			atomic.AddUint64(&p.stats.timeouts, 1)
			if ctx.Err() == nil {
				err = ErrTimeout
			}
			return nil, &PoolError{Op: "acquire", Err: err}
		default:
			return nil, &PoolError{Op: "connect", Err: err}
		}
	}

	atomic.AddUint64(&p.stats.healthChecks, 1)
	if err := p.manager.IsValid(ctx, res.Value()); err != nil {
		atomic.AddUint64(&p.stats.failedHealth, 1)
		res.Destroy()
		p.log.Warn("checkout validation failed", logger.ErrorField(err))
		return nil, &PoolError{Op: "checkout", Err: err}
	}

	atomic.AddUint64(&p.stats.checkouts, 1)
	return &Lease[C]{res: res, pool: p}, nil
}

// Close closes all idle connections and waits for leased ones to be released.
func (p *SuspendingPool[C]) Close() {
	p.pool.Close()
}

// Name returns the configured pool name.
func (p *SuspendingPool[C]) Name() string {
	return p.config.Name
}

// Stats returns current pool statistics
func (p *SuspendingPool[C]) Stats() Stats {
	st := p.pool.Stat()
	s := Stats{
		MaxConnections: int(st.MaxResources()),
		Total:          int(st.TotalResources()),
		Idle:           int(st.IdleResources()),
		InUse:          int(st.AcquiredResources()),
	}
	p.stats.fill(&s)
	return s
}

// Lease is a connection checked out of a SuspendingPool.
type Lease[C any] struct {
	res  *puddle.Resource[C]
	pool *SuspendingPool[C]
	once sync.Once
}

// Value returns the leased connection.
func (l *Lease[C]) Value() C {
	return l.res.Value()
}

// Release hands the connection back. A connection reporting HasBroken is
// destroyed instead of being returned to the idle set.
func (l *Lease[C]) Release() {
	l.once.Do(func() {
		if l.pool.manager.HasBroken(l.res.Value()) {
			atomic.AddUint64(&l.pool.stats.broken, 1)
			l.res.Destroy()
			return
		}
		l.res.Release()
	})
}

// Discard destroys the connection without returning it.
func (l *Lease[C]) Discard() {
	l.once.Do(func() {
		l.res.Destroy()
	})
}
