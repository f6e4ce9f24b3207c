package resilience

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker(zerolog.Nop())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerTripsAfterFailureThreshold(t *testing.T) {
	b := NewBreaker(zerolog.Nop())

	for i := 0; i < 5; i++ {
		_, _ = b.Execute(func() (*Response, error) {
			return nil, errors.New("boom")
		})
	}

	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerRejectsCallsWhileOpen(t *testing.T) {
	b := NewBreaker(zerolog.Nop())
	for i := 0; i < 5; i++ {
		_, _ = b.Execute(func() (*Response, error) {
			return nil, errors.New("boom")
		})
	}
	require.Equal(t, StateOpen, b.State())

	called := false
	_, err := b.Execute(func() (*Response, error) {
		called = true
		return &Response{StatusCode: 200}, nil
	})

	assert.False(t, called)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerTripsOnSlowCallsWithoutFailingThem(t *testing.T) {
	b := NewBreaker(zerolog.Nop())

	for i := 0; i < 5; i++ {
		resp, err := b.Execute(func() (*Response, error) {
			return &Response{StatusCode: 200, Body: []byte("ok")}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", string(resp.Body))
		b.RecordSlowCall()
	}

	assert.Equal(t, StateOpen, b.State(), "100 percent slow-call ratio must trip the breaker even though every call succeeded")
}

func TestBreakerForceOpenRejectsWithoutCallingFn(t *testing.T) {
	b := NewBreaker(zerolog.Nop())
	b.ForceOpen()
	assert.Equal(t, StateForcedOpen, b.State())

	called := false
	_, err := b.Execute(func() (*Response, error) {
		called = true
		return &Response{StatusCode: 200}, nil
	})
	assert.False(t, called)
	assert.ErrorIs(t, err, ErrForcedOpen)

	b.ForceReset()
	assert.Equal(t, StateClosed, b.State())
}
