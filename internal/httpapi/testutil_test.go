package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/algolab-go/broker-gateway/algolab"
	"github.com/algolab-go/broker-gateway/crypto"
	"github.com/algolab-go/broker-gateway/resilience"
	"github.com/algolab-go/broker-gateway/sessionstore"
)

// memStore is an in-memory sessionstore.Store fake, grounded on the same
// interface filestore/dbstore implement.
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

func testEncryptor() *crypto.Encryptor {
	enc, err := crypto.NewEncryptor("MTIzNDU2Nzg5MDEyMzQ1Ng==") // base64("1234567890123456")
	if err != nil {
		panic(err)
	}
	return enc
}

// newTestDeps wires a full auth/order/market-data/health stack against a
// fake broker HTTP server, the same way algolab's own tests do, so the
// router's handlers exercise the real services rather than mocks of them.
func newTestDeps(t *testing.T, mux *http.ServeMux) Deps {
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := zerolog.Nop()
	envelope := resilience.NewEnvelope(
		resilience.NewLimiter(1000),
		resilience.NewBreaker(logger),
		resilience.NewRetryPolicy(logger),
		resilience.NewFallbackCache(),
		logger,
	)
	client := algolab.NewClient(srv.URL, "https://broker.test", "test-api-key", envelope, logger)
	store := newMemStore()
	auth := algolab.NewAuthService(client, testEncryptor(), store, "owner-1", 0, logger)
	orders := algolab.NewOrderService(client)
	marketData := algolab.NewMarketDataService(client)
	health := algolab.NewHealthService(auth, nil, nil, nil)

	return Deps{
		Addr:       ":0",
		Auth:       auth,
		Orders:     orders,
		MarketData: marketData,
		Health:     health,
		Client:     client,
		Stream:     nil,
		Logger:     logger,
	}
}
