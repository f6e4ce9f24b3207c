package resilience

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Response is the resilience envelope's internal transport-agnostic
// result: a status code plus a fully-drained body. Call sites never
// hand a live *http.Response through the breaker/retry machinery, so
// retried attempts can't leak un-closed response bodies.
type Response struct {
	StatusCode int
	Body       []byte
}

// ErrForcedOpen is returned when an operator has forced the breaker open.
var ErrForcedOpen = errors.New("resilience: circuit forced open")

// ErrCircuitOpen is returned (it is gobreaker.ErrOpenState itself) when the
// breaker rejects a call because the upstream is considered unhealthy.
var ErrCircuitOpen = gobreaker.ErrOpenState

// CircuitState is the exported breaker state. gobreaker itself only models
// Closed/Open/HalfOpen; ForcedOpen is layered on top since the library has
// no such state.
type CircuitState string

const (
	StateClosed     CircuitState = "closed"
	StateOpen       CircuitState = "open"
	StateHalfOpen   CircuitState = "half-open"
	StateForcedOpen CircuitState = "forced-open"
)

// Breaker wraps a single-instance gobreaker.CircuitBreaker named "broker":
// 50% failure-rate threshold, 5000ms slow-call threshold, 100% slow-call
// rate, 5 minimum calls, 10 half-open permitted calls, 60s wait-in-open.
//
// Slow calls are tracked separately from gobreaker's own Requests/Failures
// counters: a slow-but-successful call must still trip the breaker, but it
// must never be turned into an error and handed back to the caller (that
// would discard a genuine response). RecordSlowCall lets a caller report a
// slow attempt out of band; ReadyToTrip folds it into the same generation
// gobreaker's Counts belongs to, and OnStateChange resets it alongside
// gobreaker's own counters.
type Breaker struct {
	cb         *gobreaker.CircuitBreaker[*Response]
	forcedOpen atomic.Bool
	slowCall   time.Duration
	slowCalls  atomic.Int64
}

// NewBreaker constructs the "broker" circuit breaker.
func NewBreaker(logger zerolog.Logger) *Breaker {
	return NewBreakerWithSlowThreshold(logger, 5*time.Second)
}

// NewBreakerWithSlowThreshold is NewBreaker with an overridable slow-call
// threshold, so tests can exercise the slow-call path without a real 5s wait.
func NewBreakerWithSlowThreshold(logger zerolog.Logger, slowCall time.Duration) *Breaker {
	b := &Breaker{slowCall: slowCall}

	settings := gobreaker.Settings{
		Name:        "broker",
		MaxRequests: 10,
		Interval:    0, // counts never reset on a timer; only on state transition
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			slowRatio := float64(b.slowCalls.Load()) / float64(counts.Requests)
			return failureRatio >= 0.5 || slowRatio >= 1.0
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.slowCalls.Store(0)
			logger.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	b.cb = gobreaker.NewCircuitBreaker[*Response](settings)
	return b
}

// SlowCallThreshold is the call duration past which a successful attempt
// still counts toward RecordSlowCall.
func (b *Breaker) SlowCallThreshold() time.Duration {
	return b.slowCall
}

// RecordSlowCall reports that the most recent attempt exceeded
// SlowCallThreshold, without affecting the result returned to the caller.
func (b *Breaker) RecordSlowCall() {
	b.slowCalls.Add(1)
}

// Execute runs fn through the breaker. A ForcedOpen breaker rejects
// every call without invoking fn, reproducing an operator kill switch
// gobreaker has no native concept of.
func (b *Breaker) Execute(fn func() (*Response, error)) (*Response, error) {
	if b.forcedOpen.Load() {
		return nil, ErrForcedOpen
	}

	return b.cb.Execute(fn)
}

// State reports the current breaker state, including the operator-only
// ForcedOpen override.
func (b *Breaker) State() CircuitState {
	if b.forcedOpen.Load() {
		return StateForcedOpen
	}
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// ForceOpen is an operator-only action; it is never invoked by the
// resilience envelope itself.
func (b *Breaker) ForceOpen()  { b.forcedOpen.Store(true) }
func (b *Breaker) ForceReset() { b.forcedOpen.Store(false) }

// Counts exposes the breaker's rolling counters for the observability
// surface.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}
