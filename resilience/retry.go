package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// EndpointClass parametrizes which resilience behaviors apply to a call:
// each endpoint carries its own retry/fallback policy.
type EndpointClass int

const (
	ClassRead EndpointClass = iota
	ClassOrder
	ClassAuth
)

// Retryable distinguishes errors the retry policy should act on
// (transport failures, 5xx, timeouts) from ones it must not
// (4xx, and anything from an auth-step or order-placement endpoint).
type Retryable interface {
	Retryable() bool
}

// RetryPolicy wraps cenkalti/backoff/v4's schedule (3 max attempts, 2s
// initial wait, exponential multiplier 2) but drives the inter-attempt wait
// through an injectable Clock instead of backoff.Retry's internal real
// sleep, so tests can run the schedule without blocking on it.
type RetryPolicy struct {
	logger zerolog.Logger
	clock  Clock
}

func NewRetryPolicy(logger zerolog.Logger) *RetryPolicy {
	return NewRetryPolicyWithClock(logger, realClock{})
}

func NewRetryPolicyWithClock(logger zerolog.Logger, clock Clock) *RetryPolicy {
	return &RetryPolicy{logger: logger, clock: clock}
}

func newExponentialBackOff() *backoff.ExponentialBackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 2 * time.Second
	eb.Multiplier = 2.0
	// No jitter: the waits are exactly 2s, then 4s.
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0 // bounded by attempt count, not elapsed time
	return eb
}

// Do executes fn under the retry policy for the given endpoint class.
// Auth and order-placement classes never retry (at-most-once discipline):
// fn runs exactly once regardless of outcome.
func (p *RetryPolicy) Do(ctx context.Context, class EndpointClass, fn func() error) error {
	if class == ClassAuth || class == ClassOrder {
		return fn()
	}

	eb := newExponentialBackOff()
	const maxAttempts = 3

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if r, ok := err.(Retryable); ok && !r.Retryable() {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		wait := eb.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		p.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("next_wait", wait).
			Msg("retrying broker call")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(wait):
		}
	}
	return err
}
