package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// RateLimiter keeps a token bucket per client key. Rejected requests get a
// 429, which clients classify as retryable-transient.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	config   RateLimitConfig
	mu       sync.Mutex
	cleanup  *time.Timer
}

func CreateRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}
	if config.Burst <= 0 {
		config.Burst = 20
	}

	rl := &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		config:   config,
	}
	rl.startCleanup()
	return rl
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)
		rl.limiters[key] = limiter
	}

	return limiter.Allow()
}

func (rl *RateLimiter) startCleanup() {
	rl.cleanup = time.AfterFunc(5*time.Minute, func() {
		rl.evictIdle(time.Now())
		rl.startCleanup()
	})
}

// evictIdle drops limiters whose buckets have refilled to capacity. A full
// bucket holds Burst tokens, which only happens after the key has been quiet
// long enough to not matter anymore.
func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, limiter := range rl.limiters {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) Close() {
	if rl.cleanup != nil {
		rl.cleanup.Stop()
	}
}
