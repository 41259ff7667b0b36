// Package api provides the HTTP surface of TextLoop.
//
// This file implements a lightweight in-memory token-bucket rate limiter
// with per-phone buckets and opportunistic garbage collection. It is
// process-local edge protection against runaway webhook traffic; it is not
// an authorization mechanism.
package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate limiting defaults. SMS conversations are slow by nature, so a low
// sustained rate with a small burst covers every legitimate respondent.
const (
	// DefaultRateRPS is the sustained allowed requests per second per phone.
	DefaultRateRPS = 1.0
	// DefaultRateBurst is the burst size per phone.
	DefaultRateBurst = 5
	// visitorTTL is how long an idle bucket is kept before eviction.
	visitorTTL = 10 * time.Minute
	// cleanupEvery triggers idle-bucket eviction once per this many lookups.
	cleanupEvery = 256
)

// visitor holds a single rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter implements a per-key token-bucket rate limiter. Buckets are
// created on demand; idle buckets are evicted opportunistically during
// lookups to keep memory bounded. Safe for concurrent use.
type rateLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
	lookups  uint64
}

// newRateLimiter constructs a rateLimiter with the given tokens-per-second
// and burst size.
func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
	}
}

// Allow reports whether the request identified by key may proceed now.
func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups%cleanupEvery == 0 {
		rl.evictIdle()
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// evictIdle removes buckets idle longer than visitorTTL. Caller holds mu.
func (rl *rateLimiter) evictIdle() {
	cutoff := time.Now().Add(-visitorTTL)
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
		}
	}
}
