package algolab

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/rs/zerolog"

	"github.com/algolab-go/broker-gateway/crypto"
	"github.com/algolab-go/broker-gateway/resilience"
	"github.com/algolab-go/broker-gateway/sessionstore"
)

// memStore is an in-memory sessionstore.Store fake for tests, grounded on
// the same interface filestore/dbstore implement.
type memStore struct {
	records map[string]sessionstore.Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]sessionstore.Record)}
}

func (m *memStore) Save(_ context.Context, record sessionstore.Record) error {
	m.records[record.Owner] = record
	return nil
}

func (m *memStore) Load(_ context.Context, owner string) (sessionstore.Record, error) {
	r, ok := m.records[owner]
	if !ok || !r.Active {
		return sessionstore.Record{}, sessionstore.ErrNotFound
	}
	return r, nil
}

func (m *memStore) Deactivate(_ context.Context, owner string, reason string) error {
	r, ok := m.records[owner]
	if !ok {
		return nil
	}
	r.Active = false
	r.TerminationReason = reason
	m.records[owner] = r
	return nil
}

func (m *memStore) Close() error { return nil }

// newTestClient builds a Client wired against srv with a fast-enough
// resilience envelope that tests don't spend real wall-clock time waiting
// on the 0.2/s production rate limit.
func newTestClient(srv *httptest.Server) *Client {
	logger := zerolog.Nop()
	limiter := resilience.NewLimiter(1000)
	breaker := resilience.NewBreaker(logger)
	retry := resilience.NewRetryPolicy(logger)
	fallback := resilience.NewFallbackCache()
	envelope := resilience.NewEnvelope(limiter, breaker, retry, fallback, logger)

	return NewClient(srv.URL, "https://broker.test", "test-api-key", envelope, logger)
}

// jsonHandler returns an http.HandlerFunc writing status and body verbatim
// for any request, capturing the request for assertions via capture.
func jsonHandler(status int, body string, capture *capturedRequest) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			data, _ := io.ReadAll(r.Body)
			capture.Method = r.Method
			capture.Path = r.URL.Path
			capture.Body = string(data)
			capture.Headers = r.Header.Clone()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

type capturedRequest struct {
	Method  string
	Path    string
	Body    string
	Headers http.Header
}

// testEncryptor returns a fixed 16-byte-key Encryptor for deterministic
// test ciphertexts.
func testEncryptor() *crypto.Encryptor {
	enc, err := crypto.NewEncryptor("MTIzNDU2Nzg5MDEyMzQ1Ng==") // base64("1234567890123456")
	if err != nil {
		panic(err)
	}
	return enc
}
