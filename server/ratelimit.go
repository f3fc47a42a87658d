package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterCleanupInterval = 5 * time.Minute

// flowLimiter keeps one token bucket per flow id
type flowLimiter struct {
	rate  rate.Limit
	burst int

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
}

// newFlowLimiter returns a limiter allowing perSecond steps per flow. A non-positive rate disables limiting.
func newFlowLimiter(perSecond float64, burst int) *flowLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &flowLimiter{
		rate:        limit,
		burst:       max(burst, 1),
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// allow consumes a token for id, or reports how long until one is available.
func (l *flowLimiter) allow(id string) (bool, time.Duration) {
	if l.rate == rate.Inf {
		return true, 0
	}
	limiter := l.get(id)
	if limiter.Allow() {
		return true, 0
	}
	reservation := limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return false, delay
}

func (l *flowLimiter) get(id string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanup()
	limiter, ok := l.limiters[id]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[id] = limiter
	}
	return limiter
}

// cleanup drops limiters whose bucket is full again, i.e. idle flows. Callers hold mu.
func (l *flowLimiter) cleanup() {
	if time.Since(l.lastCleanup) < limiterCleanupInterval {
		return
	}
	l.lastCleanup = time.Now()
	for id, limiter := range l.limiters {
		if limiter.Tokens() >= float64(l.burst) {
			delete(l.limiters, id)
		}
	}
}
