package reslimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitError is returned when a key has exhausted its budget.
type RateLimitError struct {
	Key            string
	Requests       int
	WindowSeconds  int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q: %d requests per %ds", e.Key, e.Requests, e.WindowSeconds)
}

// RateLimiter is a per-key token bucket over golang.org/x/time/rate:
// one real bucket per key instead of a sliding window of timestamps,
// so a check is O(1) no matter how bursty the caller.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	window   time.Duration
}

// NewRateLimiter creates a limiter allowing `requests` operations per
// window for each distinct key.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	perSecond := float64(requests) / window.Seconds()
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    requests,
		window:   window,
	}
}

func (r *RateLimiter) limiterFor(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = l
	}
	return l
}

// CheckRateLimit consumes one token for key, or returns
// RateLimitError if the bucket is empty. Never blocks.
func (r *RateLimiter) CheckRateLimit(key string) error {
	l := r.limiterFor(key)
	if !l.Allow() {
		return &RateLimitError{Key: key, Requests: r.burst, WindowSeconds: int(r.window.Seconds())}
	}
	return nil
}

// Forget drops a key's bucket, e.g. after an agent's session ends.
func (r *RateLimiter) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, key)
}
