package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/algolab-go/broker-gateway/apierr"
)

// Call is the shape every envelope-wrapped broker call must satisfy: a
// plain function of ctx that returns a transport-agnostic Response or an
// error implementing Retryable.
type Call func(ctx context.Context) (*Response, error)

// Envelope runs a broker call through the rate limiter, circuit breaker,
// retry policy and per-attempt time limit, and produces a per-class
// fallback result when the circuit is open or retries are exhausted.
type Envelope struct {
	Limiter     *Limiter
	Breaker     *Breaker
	Retry       *RetryPolicy
	Fallback    *FallbackCache
	CallTimeout time.Duration
	Logger      zerolog.Logger

	// DevMockPositions enables an optional dev-only mock fallback payload
	// for positions calls. All other endpoint classes never use it.
	DevMockPositions bool
	MockPositionsFn  func() ([]byte, bool)
}

// positionsCacheKey is the cache key of positions calls: the REST client
// keys every call by its endpoint path.
const positionsCacheKey = "/api/InstantPosition"

// NewEnvelope wires the full rate-limit -> circuit-breaker -> retry ->
// time-limiter -> call chain.
func NewEnvelope(limiter *Limiter, breaker *Breaker, retry *RetryPolicy, fallback *FallbackCache, logger zerolog.Logger) *Envelope {
	return &Envelope{
		Limiter:     limiter,
		Breaker:     breaker,
		Retry:       retry,
		Fallback:    fallback,
		CallTimeout: 10 * time.Second,
		Logger:      logger,
	}
}

// Result carries the outcome of an enveloped call, including a clear
// indicator that the payload came from the fallback cache rather than a
// live broker response.
type Result struct {
	Response  *Response
	FromCache bool
}

// Execute runs call under the full resilience envelope for the given
// endpoint class, using cacheKey to store/retrieve the fallback cache
// entry for read-only classes. The per-call time limit bounds a single
// attempt, not the whole retry sequence, so a slow attempt costs one
// retry's budget rather than the entire call's.
func (e *Envelope) Execute(ctx context.Context, class EndpointClass, cacheKey string, call Call) (*Result, error) {
	if err := e.Limiter.Wait(ctx); err != nil {
		return nil, &apierr.RateLimitExceeded{}
	}

	resp, err := e.Breaker.Execute(func() (*Response, error) {
		var attemptResp *Response
		retryErr := e.Retry.Do(ctx, class, func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, e.CallTimeout)
			defer cancel()

			start := time.Now()
			r, callErr := call(attemptCtx)
			if callErr != nil {
				if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
					return &apierr.TimeoutError{}
				}
				return callErr
			}
			if r.StatusCode >= 400 {
				return &apierr.ApiError{Status: r.StatusCode, Body: string(r.Body)}
			}
			// A slow-but-successful attempt still signals an unhealthy
			// upstream and must count toward the breaker's trip decision,
			// but the genuine response is never discarded for it.
			if time.Since(start) >= e.Breaker.SlowCallThreshold() {
				e.Breaker.RecordSlowCall()
			}
			attemptResp = r
			return nil
		})
		if retryErr != nil {
			return nil, retryErr
		}
		return attemptResp, nil
	})

	if err != nil {
		return e.fallback(class, cacheKey, err)
	}

	if class == ClassRead {
		e.Fallback.Store(cacheKey, resp.Body)
	}

	return &Result{Response: resp}, nil
}

// fallback implements the per-class fallback policy:
//   - order placement: always ServiceUnavailable wrapped as OrderNotPlaced
//   - auth: never served from cache
//   - read-only: last-good cached response within TTL, else ServiceUnavailable
//   - positions (read-only), in dev: optionally a mock payload
func (e *Envelope) fallback(class EndpointClass, cacheKey string, cause error) (*Result, error) {
	switch class {
	case ClassOrder:
		return nil, &apierr.OrderNotPlaced{Cause: cause}
	case ClassAuth:
		return nil, cause
	default:
		if body, ok := e.Fallback.Get(cacheKey); ok {
			e.Logger.Info().Str("cache_key", cacheKey).Msg("serving fallback cached response")
			return &Result{Response: &Response{StatusCode: 200, Body: body}, FromCache: true}, nil
		}
		if e.DevMockPositions && e.MockPositionsFn != nil && cacheKey == positionsCacheKey {
			if body, ok := e.MockPositionsFn(); ok {
				return &Result{Response: &Response{StatusCode: 200, Body: body}, FromCache: true}, nil
			}
		}
		return nil, &apierr.ServiceUnavailable{Reason: cause.Error()}
	}
}
