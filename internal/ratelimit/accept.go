package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// AcceptLimiter throttles inbound QUIC connection admission per remote
// IP, distinct in granularity from TokenBucket's per-connection session
// throttling: this guards against one address opening many connections,
// not one connection opening many sessions.
type AcceptLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewAcceptLimiter allows burst immediate connections per IP, refilling
// at limit per second thereafter.
func NewAcceptLimiter(limit rate.Limit, burst int) *AcceptLimiter {
	return &AcceptLimiter{limiters: make(map[string]*rate.Limiter), limit: limit, burst: burst}
}

// Allow reports whether a new connection from ip should be admitted.
func (a *AcceptLimiter) Allow(ip string) bool {
	a.mu.Lock()
	l, ok := a.limiters[ip]
	if !ok {
		l = rate.NewLimiter(a.limit, a.burst)
		a.limiters[ip] = l
	}
	a.mu.Unlock()
	return l.Allow()
}
