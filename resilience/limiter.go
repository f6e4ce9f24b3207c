package resilience

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate so the REST client can block on
// permit acquisition without the call sites knowing about the rate
// shape. Default is one call every 5s (0.2/s) per spec.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter builds a limiter allowing callsPerSecond sustained calls,
// with a burst of 1 (no bursting beyond the steady rate).
func NewLimiter(callsPerSecond float64) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(callsPerSecond), 1)}
}

// Wait blocks until a permit is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
