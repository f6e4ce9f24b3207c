// Package apierr defines the gateway's error taxonomy. Types here are
// shared between the resilience envelope and the higher-level services so
// that retry/fallback policy and user-facing messages stay in one place.
package apierr

import "fmt"

// AuthErrorKind enumerates the distinct authentication failure codes a
// caller needs to be able to distinguish.
type AuthErrorKind string

const (
	InvalidCredentials AuthErrorKind = "invalid_credentials"
	MissingPriorStep   AuthErrorKind = "missing_prior_step"
	BrokerRejected     AuthErrorKind = "broker_rejected"
	SessionExpired     AuthErrorKind = "session_expired"
	NotAuthenticated   AuthErrorKind = "not_authenticated"
)

// AuthError reports a failure in the login/OTP/restore/refresh state
// machine. It is never retried from inside the resilience envelope.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Kind, e.Message)
}

// Retryable implements resilience.Retryable: auth errors are surfaced to
// the caller, never retried internally.
func (e *AuthError) Retryable() bool { return false }

// UserMessage renders the user-visible string for this failure.
func (e *AuthError) UserMessage() string {
	switch e.Kind {
	case SessionExpired:
		return "unauthorized — please log in again"
	default:
		return e.Message
	}
}

// ApiError carries a non-2xx HTTP response from the broker. It is
// retryable only for 5xx statuses: 4xx responses are a client-side
// problem, and the resilience envelope's retry policy only fires on
// 5xx/transport errors.
type ApiError struct {
	Status int
	Body   string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("broker api error: HTTP %d: %s", e.Status, e.Body)
}

func (e *ApiError) Retryable() bool { return e.Status >= 500 }

func (e *ApiError) UserMessage() string {
	if e.Status >= 500 {
		return "service temporarily unavailable, try later"
	}
	return e.Error()
}

// TransportError wraps an IO/DNS/TLS/timeout failure reaching the
// broker. Always retryable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Retryable() bool { return true }
func (e *TransportError) UserMessage() string { return "network unreachable" }

// TimeoutError reports the time limiter expiring and canceling the call.
type TimeoutError struct{}

func (e *TimeoutError) Error() string       { return "call exceeded time limiter budget" }
func (e *TimeoutError) Retryable() bool     { return true }
func (e *TimeoutError) UserMessage() string { return "timed out" }

// RateLimitExceeded reports a permit wait that exceeded the time
// limiter's budget.
type RateLimitExceeded struct{}

func (e *RateLimitExceeded) Error() string       { return "rate limit permit wait exceeded time budget" }
func (e *RateLimitExceeded) UserMessage() string { return "service temporarily unavailable, try later" }

// CircuitOpenError reports the breaker rejecting a call outright.
type CircuitOpenError struct{}

func (e *CircuitOpenError) Error() string       { return "circuit breaker is open" }
func (e *CircuitOpenError) UserMessage() string { return "service temporarily unavailable, try later" }

// ValidationError reports invalid caller input (e.g. an unrecognized
// order direction token).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error (%s): %s", e.Field, e.Message)
}
func (e *ValidationError) UserMessage() string { return e.Message }

// CacheError reports a cache-tier failure. Never fatal: the caller
// degrades to the next tier or skips caching entirely.
type CacheError struct {
	Err error
}

func (e *CacheError) Error() string { return fmt.Sprintf("cache error: %v", e.Err) }
func (e *CacheError) Unwrap() error { return e.Err }

// ServiceUnavailable is what the fallback handler returns for a
// read-only call when no cached data is available. Order-placement calls
// get OrderNotPlaced instead, and auth calls get their original error.
type ServiceUnavailable struct {
	Reason string
}

func (e *ServiceUnavailable) Error() string       { return "service unavailable: " + e.Reason }
func (e *ServiceUnavailable) UserMessage() string { return "service temporarily unavailable, try later" }

// OrderNotPlaced is the explicit error returned on the order-placement
// fallback path. It must never be confused with a successful order
// response.
type OrderNotPlaced struct {
	Cause error
}

func (e *OrderNotPlaced) Error() string {
	return fmt.Sprintf("order was NOT placed: %v", e.Cause)
}
func (e *OrderNotPlaced) Unwrap() error      { return e.Cause }
func (e *OrderNotPlaced) UserMessage() string { return "order was NOT placed" }
