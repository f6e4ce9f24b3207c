// Package algolab implements the broker-integration gateway core: the
// two-step authentication state machine, the signed and resilience-wrapped
// REST client, order operations, market-data reference calls, and the
// aggregate health view. See the streaming subpackage for the WebSocket
// market-data client.
package algolab

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/algolab-go/broker-gateway/apierr"
	"github.com/algolab-go/broker-gateway/crypto"
	"github.com/algolab-go/broker-gateway/resilience"
)

// authHeader is the (token, hash) pair installed by AuthService: written
// only there, read by everyone else through an atomic reference.
type authHeader struct {
	token string
	hash  string
}

// Client is the signed, rate-limited, circuit-broken REST caller. Grounded
// on adapter/saxo.go's SaxoBrokerClient: same constructor shape and
// doRequest/handleErrorResponse idiom, now routed through
// resilience.Envelope and AlgoLab's header/signing scheme instead of OAuth2
// bearer tokens.
type Client struct {
	httpClient *http.Client
	baseURL    string
	hostname   string
	apiKey     string
	envelope   *resilience.Envelope
	logger     zerolog.Logger

	current atomic.Pointer[authHeader]
}

// NewClient builds a Client against baseURL (e.g. "https://www.algolab.com.tr/api")
// and hostname (used in the Checker signature).
func NewClient(baseURL, hostname, apiKey string, envelope *resilience.Envelope, logger zerolog.Logger) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		hostname:   hostname,
		apiKey:     apiKey,
		envelope:   envelope,
		logger:     logger.With().Str("component", "algolab.client").Logger(),
	}
	c.current.Store(&authHeader{})
	return c
}

// Envelope exposes the resilience envelope for observability callers (the
// /metrics handler reads Envelope().Breaker's rolling counts).
func (c *Client) Envelope() *resilience.Envelope {
	return c.envelope
}

// setAuth installs the (token, hash) pair produced by AuthService. Called
// only by AuthService; every other caller treats it as read-only.
func (c *Client) setAuth(token, hash string) {
	c.current.Store(&authHeader{token: token, hash: hash})
}

// clearAuth forgets the installed (token, hash) pair.
func (c *Client) clearAuth() {
	c.current.Store(&authHeader{})
}

// authSnapshot returns the currently installed pair without racing a
// concurrent setAuth/clearAuth.
func (c *Client) authSnapshot() authHeader {
	return *c.current.Load()
}

// Credentials is the (token, hash) pair AuthService produces. Both the
// REST client and the streaming WebSocket client consume it through a
// read-only accessor rather than a bare mutex-guarded field.
type Credentials struct {
	Token string
	Hash  string
}

// CredentialsSource is implemented by Client so the streaming client can
// read the current session pair at handshake time without depending on
// AuthService directly.
type CredentialsSource interface {
	Credentials() Credentials
}

// Credentials returns the currently installed (token, hash) pair.
func (c *Client) Credentials() Credentials {
	h := c.authSnapshot()
	return Credentials{Token: h.token, Hash: h.hash}
}

// call issues a signed POST to endpoint with the given class, payload, and
// whether the Authorization/Checker headers are attached (unauthenticated
// for the two login steps). It returns the raw response body and whether
// it was served from the fallback cache.
func (c *Client) call(ctx context.Context, class resilience.EndpointClass, endpoint string, payload crypto.OrderedPayload, authenticated bool) ([]byte, bool, error) {
	compact, err := payload.CompactJSON()
	if err != nil {
		return nil, false, &apierr.ValidationError{Field: "payload", Message: err.Error()}
	}

	cacheKey := endpoint
	result, err := c.envelope.Execute(ctx, class, cacheKey, func(ctx context.Context) (*resilience.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewBufferString(compact))
		if err != nil {
			return nil, &apierr.TransportError{Err: err}
		}
		req.Header.Set("APIKEY", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		if authenticated {
			snapshot := c.authSnapshot()
			checker, err := crypto.Sign(c.apiKey, c.hostname, endpoint, payload)
			if err != nil {
				return nil, &apierr.ValidationError{Field: "payload", Message: err.Error()}
			}
			req.Header.Set("Authorization", snapshot.hash)
			req.Header.Set("Checker", checker)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &apierr.TransportError{Err: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &apierr.TransportError{Err: err}
		}

		if resp.StatusCode >= 400 {
			c.logger.Warn().Int("status", resp.StatusCode).Str("endpoint", endpoint).Bytes("body", body).Msg("broker returned an error response")
		}

		return &resilience.Response{StatusCode: resp.StatusCode, Body: body}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return result.Response.Body, result.FromCache, nil
}

// doAuthenticated is a convenience wrapper for the common authenticated
// read/write/order call shape.
func (c *Client) doAuthenticated(ctx context.Context, class resilience.EndpointClass, endpoint string, payload crypto.OrderedPayload) ([]byte, bool, error) {
	return c.call(ctx, class, endpoint, payload, true)
}

// doUnauthenticated is used by the two login steps, which carry no
// Authorization/Checker headers.
func (c *Client) doUnauthenticated(ctx context.Context, endpoint string, payload crypto.OrderedPayload) ([]byte, bool, error) {
	return c.call(ctx, resilience.ClassAuth, endpoint, payload, false)
}

// errorFromBody wraps a status and the raw, unparsed body in an ApiError,
// matching adapter/saxo.go's handleErrorResponse "raw body" fallback.
func errorFromBody(status int, body []byte) error {
	return &apierr.ApiError{Status: status, Body: string(body)}
}
