package resilience

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algolab-go/broker-gateway/apierr"
)

func newTestEnvelope() *Envelope {
	logger := zerolog.Nop()
	return NewEnvelope(NewLimiter(1000), NewBreaker(logger), NewRetryPolicy(logger), NewFallbackCache(), logger)
}

func TestEnvelopeExecuteHappyPath(t *testing.T) {
	e := newTestEnvelope()

	result, err := e.Execute(context.Background(), ClassRead, "key1", func(ctx context.Context) (*Response, error) {
		return &Response{StatusCode: 200, Body: []byte("ok")}, nil
	})

	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, "ok", string(result.Response.Body))
}

func TestEnvelopeCachesReadsAndServesOnFailure(t *testing.T) {
	e := newTestEnvelope()

	_, err := e.Execute(context.Background(), ClassRead, "key1", func(ctx context.Context) (*Response, error) {
		return &Response{StatusCode: 200, Body: []byte("good")}, nil
	})
	require.NoError(t, err)

	result, err := e.Execute(context.Background(), ClassRead, "key1", func(ctx context.Context) (*Response, error) {
		return nil, &apierr.ApiError{Status: 400, Body: "broker down"}
	})

	require.NoError(t, err)
	assert.True(t, result.FromCache)
	assert.Equal(t, "good", string(result.Response.Body))
}

func TestEnvelopeSlowButSuccessfulCallIsNotDiscarded(t *testing.T) {
	logger := zerolog.Nop()
	breaker := NewBreakerWithSlowThreshold(logger, 0) // every call counts as slow
	e := NewEnvelope(NewLimiter(1000), breaker, NewRetryPolicy(logger), NewFallbackCache(), logger)

	result, err := e.Execute(context.Background(), ClassRead, "slow-key", func(ctx context.Context) (*Response, error) {
		return &Response{StatusCode: 200, Body: []byte("real response")}, nil
	})

	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, "real response", string(result.Response.Body))
	assert.Equal(t, StateClosed, breaker.State(), "a single slow call must not trip the breaker below the minimum-request floor")
}

func TestEnvelopeRepeatedSlowCallsEventuallyTripBreaker(t *testing.T) {
	logger := zerolog.Nop()
	breaker := NewBreakerWithSlowThreshold(logger, 0) // every call counts as slow
	e := NewEnvelope(NewLimiter(1000), breaker, NewRetryPolicy(logger), NewFallbackCache(), logger)

	for i := 0; i < 5; i++ {
		result, err := e.Execute(context.Background(), ClassRead, "slow-key", func(ctx context.Context) (*Response, error) {
			return &Response{StatusCode: 200, Body: []byte("real response")}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "real response", string(result.Response.Body))
	}

	assert.Equal(t, StateOpen, breaker.State())
}

func TestEnvelopeOrderClassNeverServesCache(t *testing.T) {
	e := newTestEnvelope()

	_, err := e.Execute(context.Background(), ClassOrder, "orders", func(ctx context.Context) (*Response, error) {
		return nil, &apierr.ApiError{Status: 400, Body: "broker down"}
	})

	var notPlaced *apierr.OrderNotPlaced
	assert.ErrorAs(t, err, &notPlaced)
}

func TestEnvelopeAuthClassNeverServesCacheOrRetries(t *testing.T) {
	e := newTestEnvelope()
	attempts := 0

	_, err := e.Execute(context.Background(), ClassAuth, "auth", func(ctx context.Context) (*Response, error) {
		attempts++
		return nil, &apierr.ApiError{Status: 400, Body: "broker down"}
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestEnvelopeReadClassWithoutCacheReturnsServiceUnavailable(t *testing.T) {
	e := newTestEnvelope()

	_, err := e.Execute(context.Background(), ClassRead, "never-cached", func(ctx context.Context) (*Response, error) {
		return nil, &apierr.ApiError{Status: 400, Body: "broker down"}
	})

	var unavailable *apierr.ServiceUnavailable
	assert.ErrorAs(t, err, &unavailable)
}
