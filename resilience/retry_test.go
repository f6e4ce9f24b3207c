package resilience

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/algolab-go/broker-gateway/apierr"
)

func TestRetryPolicyRetriesRetryableErrors(t *testing.T) {
	p := NewRetryPolicyWithClock(zerolog.Nop(), fakeClock{})
	attempts := 0

	err := p.Do(context.Background(), ClassRead, func() error {
		attempts++
		if attempts < 3 {
			return &apierr.TransportError{Err: context.DeadlineExceeded}
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyStopsAfterMaxAttempts(t *testing.T) {
	p := NewRetryPolicyWithClock(zerolog.Nop(), fakeClock{})
	attempts := 0

	err := p.Do(context.Background(), ClassRead, func() error {
		attempts++
		return &apierr.TransportError{Err: context.DeadlineExceeded}
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyNeverRetriesNonRetryableErrors(t *testing.T) {
	p := NewRetryPolicy(zerolog.Nop())
	attempts := 0

	err := p.Do(context.Background(), ClassRead, func() error {
		attempts++
		return &apierr.ApiError{Status: 400}
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicySkipsRetryForAuthAndOrderClasses(t *testing.T) {
	p := NewRetryPolicy(zerolog.Nop())

	for _, class := range []EndpointClass{ClassAuth, ClassOrder} {
		attempts := 0
		_ = p.Do(context.Background(), class, func() error {
			attempts++
			return &apierr.TransportError{Err: context.DeadlineExceeded}
		})
		assert.Equal(t, 1, attempts, "class %v must run exactly once", class)
	}
}
