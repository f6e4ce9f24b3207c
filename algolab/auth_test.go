package algolab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algolab-go/broker-gateway/sessionstore"
)

// TestLoginHappyPath exercises the full two-step login scenario:
// loginUser -> AwaitingOtp, verifyOtp -> Authenticated with a persisted
// active session row.
func TestLoginHappyPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/LoginUser", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"content":{"token":"T1"}}`))
	})
	mux.HandleFunc("/api/LoginUserControl", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"content":{"hash":"H1"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(srv)
	store := newMemStore()
	auth := NewAuthService(client, testEncryptor(), store, "owner-1", 0, zerolog.Nop())

	require.NoError(t, auth.LoginUser(context.Background(), "tc11111111111", "P@ss"))
	assert.Equal(t, AwaitingOtp, auth.State())

	require.NoError(t, auth.VerifyOtp(context.Background(), "123456"))
	assert.Equal(t, Authenticated, auth.State())
	assert.True(t, auth.IsAuthenticated())

	record, err := store.Load(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "T1", record.Token)
	assert.Equal(t, "H1", record.Hash)
	assert.True(t, record.Active)
}

// TestVerifyOtpWithoutLoginFails checks the MissingPriorStep AuthError.
func TestVerifyOtpWithoutLoginFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	}))
	defer srv.Close()

	client := newTestClient(srv)
	auth := NewAuthService(client, testEncryptor(), newMemStore(), "owner-1", 0, zerolog.Nop())

	err := auth.VerifyOtp(context.Background(), "123456")
	require.Error(t, err)
	assert.Equal(t, Unauthenticated, auth.State())
}

// TestLoginInvalidCredentials checks the broker-rejects-login path never
// transitions state.
func TestLoginInvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":false,"message":"invalid credentials"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	auth := NewAuthService(client, testEncryptor(), newMemStore(), "owner-1", 0, zerolog.Nop())

	err := auth.LoginUser(context.Background(), "bad", "creds")
	require.Error(t, err)
	assert.Equal(t, Unauthenticated, auth.State())
}

// TestRestoreSessionValidatesLiveness exercises restoreSession: a stored
// session is installed, validated via isAlive, and only then promoted to
// Authenticated.
func TestRestoreSessionValidatesLiveness(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/GetSubAccounts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "H1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(srv)
	store := newMemStore()
	require.NoError(t, store.Save(context.Background(), sessionRecordFixture()))

	auth := NewAuthService(client, testEncryptor(), store, "owner-1", 0, zerolog.Nop())
	ok := auth.RestoreSession(context.Background())
	assert.True(t, ok)
	assert.Equal(t, Authenticated, auth.State())
}

// TestRestoreSessionFailsValidation ensures a failed liveness check clears
// state rather than declaring success.
func TestRestoreSessionFailsValidation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/GetSubAccounts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(srv)
	store := newMemStore()
	require.NoError(t, store.Save(context.Background(), sessionRecordFixture()))

	auth := NewAuthService(client, testEncryptor(), store, "owner-1", 0, zerolog.Nop())
	ok := auth.RestoreSession(context.Background())
	assert.False(t, ok)
	assert.Equal(t, Unauthenticated, auth.State())
}

func sessionRecordFixture() sessionstore.Record {
	return sessionstore.Record{
		Owner:     "owner-1",
		Token:     "T1",
		Hash:      "H1",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
		Active:    true,
	}
}
