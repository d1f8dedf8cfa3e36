package pool

import "sync/atomic"

// counters are updated with atomic operations only.
type counters struct {
	checkouts     uint64
	created       uint64
	connectErrors uint64
	timeouts      uint64
	healthChecks  uint64
	failedHealth  uint64
	broken        uint64
	closed        uint64
}

func (c *counters) fill(s *Stats) {
	s.Checkouts = atomic.LoadUint64(&c.checkouts)
	s.Created = atomic.LoadUint64(&c.created)
	s.ConnectErrors = atomic.LoadUint64(&c.connectErrors)
	s.Timeouts = atomic.LoadUint64(&c.timeouts)
	s.HealthChecks = atomic.LoadUint64(&c.healthChecks)
	s.FailedHealth = atomic.LoadUint64(&c.failedHealth)
	s.Broken = atomic.LoadUint64(&c.broken)
	s.Closed = atomic.LoadUint64(&c.closed)
}
