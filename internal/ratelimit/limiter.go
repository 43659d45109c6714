// Package ratelimit implements the shared "at most M events per W
// seconds" limiter used to protect router flash memory from excessive
// writes (§4.1 step 9, §4.7). It wraps golang.org/x/time/rate's token
// bucket: burst is M, refill rate is M events replenished uniformly over
// W seconds, which reproduces the "M-th event in the window succeeds,
// (M+1)-th is denied until the bucket has refilled" behavior the spec's
// test scenario (§8 #5) pins, without hand-rolling a sliding-window log.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token-bucket rate limiter with a throttle counter for
// observability (spec: "callers increment a counter when throttled").
type Limiter struct {
	mu        sync.Mutex
	lim       *rate.Limiter
	throttled int64
}

// New builds a Limiter allowing at most maxEvents per window.
func New(maxEvents int, window time.Duration) *Limiter {
	if maxEvents < 1 {
		maxEvents = 1
	}
	perSec := rate.Limit(float64(maxEvents) / window.Seconds())
	return &Limiter{lim: rate.NewLimiter(perSec, maxEvents)}
}

// Allow reports whether the caller may proceed right now, consuming one
// token on success. On denial it atomically increments the throttle
// counter so callers can record it in metrics without an extra CAS.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	ok := l.lim.Allow()
	l.mu.Unlock()
	if !ok {
		atomic.AddInt64(&l.throttled, 1)
	}
	return ok
}

// Throttled returns the number of denied Allow calls since creation.
func (l *Limiter) Throttled() int64 {
	return atomic.LoadInt64(&l.throttled)
}
