// Package ratelimit implements a token bucket limiter used to pace calls
// against external APIs with request quotas.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/isotools/drawscan/internal/metrics"
)

// Limiter paces calls per named operation, e.g. "list" and "download" against
// the document source. Each operation gets its own token bucket so a burst of
// downloads cannot starve folder enumeration.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerSecond is the sustained rate per operation. Zero or
	// negative disables throttling.
	RequestsPerSecond float64
	// Burst is the bucket size per operation.
	Burst int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Wait blocks until a token is available for the operation, respecting the
// context. Delays above a millisecond are recorded as throttle time.
func (l *Limiter) Wait(ctx context.Context, op string) error {
	l.mu.Lock()
	limiter, ok := l.limiters[op]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[op] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		metrics.ObserveSourceThrottle(op, delay)
	}
	return nil
}
