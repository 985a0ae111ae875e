package resilience

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a token bucket whose rate halves on throttle signals and
// creeps back toward the configured ceiling on success. The registry publishes
// no quota numbers, so the real limit has to be discovered by probing.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	ceiling rate.Limit
	floor   rate.Limit
}

// NewAdaptiveLimiter creates a limiter that starts at rps requests per second.
func NewAdaptiveLimiter(rps float64) *AdaptiveLimiter {
	if rps <= 0 {
		rps = 1
	}
	ceiling := rate.Limit(rps)
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(ceiling, 1),
		ceiling: ceiling,
		floor:   ceiling / 8,
	}
}

// Wait blocks until the next request is allowed or the context is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	a.mu.Lock()
	l := a.limiter
	a.mu.Unlock()
	return l.Wait(ctx)
}

// OnThrottle halves the current rate, down to the floor.
func (a *AdaptiveLimiter) OnThrottle() {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := a.limiter.Limit() / 2
	if next < a.floor {
		next = a.floor
	}
	a.limiter.SetLimit(next)
	zap.L().Warn("rate limit hit, slowing down", zap.Float64("requests_per_sec", float64(next)))
}

// OnSuccess nudges the rate back toward the ceiling.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := a.limiter.Limit()
	if current >= a.ceiling {
		return
	}
	next := current * 1.05
	if next > a.ceiling {
		next = a.ceiling
	}
	a.limiter.SetLimit(next)
}

// Rate returns the current requests-per-second setting.
func (a *AdaptiveLimiter) Rate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.limiter.Limit())
}
