package feeRegistry

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterTTL             = 10 * time.Minute
	limiterCleanupInterval = time.Minute
)

type remoteLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// remoteRateLimiter keeps one token bucket per remote. Buckets idle for
// longer than limiterTTL are dropped on the next cleanup pass.
type remoteRateLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	limiters    map[string]*remoteLimiter
	lastCleanup time.Time
	now         func() time.Time
}

func newRemoteRateLimiter(limit float64, burst int) *remoteRateLimiter {
	return &remoteRateLimiter{
		limit:    rate.Limit(limit),
		burst:    burst,
		limiters: make(map[string]*remoteLimiter),
		now:      time.Now,
	}
}

// Allow consumes one token from the remote's bucket.
func (r *remoteRateLimiter) Allow(remote string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastCleanup) >= limiterCleanupInterval {
		r.cleanup(now)
	}

	entry, ok := r.limiters[remote]
	if !ok {
		entry = &remoteLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[remote] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

func (r *remoteRateLimiter) cleanup(now time.Time) {
	for remote, entry := range r.limiters {
		if now.Sub(entry.lastSeen) > limiterTTL {
			delete(r.limiters, remote)
		}
	}
	r.lastCleanup = now
}

func (r *remoteRateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}
