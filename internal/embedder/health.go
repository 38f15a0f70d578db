package embedder

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultHealthTimeout bounds a single liveness check
	DefaultHealthTimeout = 2 * time.Second

	// DefaultHealthInterval is how long an availability result is reused
	DefaultHealthInterval = 30 * time.Second
)

// healthCheck runs a liveness check at most once per interval and remembers
// the answer, so a dead backend is not contacted on every call.
type healthCheck struct {
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	checked   bool
	available bool
	checkedAt time.Time
}

func newHealthCheck(timeout, interval time.Duration) *healthCheck {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &healthCheck{timeout: timeout, interval: interval, now: time.Now}
}

// check returns the cached result if it is fresh, otherwise runs ping under
// the check timeout. Concurrent callers wait for the same ping.
func (p *healthCheck) check(ctx context.Context, ping func(context.Context) error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.checked && p.now().Sub(p.checkedAt) < p.interval {
		return p.available
	}

	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.available = ping(pingCtx) == nil
	p.checked = true
	p.checkedAt = p.now()
	return p.available
}

// reset forgets the cached result
func (p *healthCheck) reset() {
	p.mu.Lock()
	p.checked = false
	p.mu.Unlock()
}
