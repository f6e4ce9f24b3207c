package streaming

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/algolab-go/broker-gateway/algolab"
	"github.com/algolab-go/broker-gateway/streaming/cache"
)

// mockCredentials is the test-only algolab.CredentialsSource, standing in
// for a live AuthService.
type mockCredentials struct{ hash string }

func (m mockCredentials) Credentials() algolab.Credentials {
	return algolab.Credentials{Token: "tok", Hash: m.hash}
}

// testServer is a minimal JSON-frame WebSocket server, grounded on
// adapter/websocket/mocktesting/mock_websocket_server.go's httptest.NewServer
// + gorilla upgrader pattern, adapted from Saxo's binary wire format to
// AlgoLab's plain-JSON frames.
type testServer struct {
	srv     *httptest.Server
	upgrade websocket.Upgrader

	mu      sync.Mutex
	conns   []*websocket.Conn
	frames  []string
	refuse  bool
}

func newTestServer() *testServer {
	ts := &testServer{upgrade: websocket.Upgrader{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		refuse := ts.refuse
		ts.mu.Unlock()
		if refuse {
			http.Error(w, "refused", http.StatusServiceUnavailable)
			return
		}
		conn, err := ts.upgrade.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.conns = append(ts.conns, conn)
		ts.mu.Unlock()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ts.mu.Lock()
			ts.frames = append(ts.frames, string(raw))
			ts.mu.Unlock()
		}
	})
	ts.srv = httptest.NewServer(mux)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
}

func (ts *testServer) broadcast(raw string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, c := range ts.conns {
		c.WriteMessage(websocket.TextMessage, []byte(raw))
	}
}

func (ts *testServer) frameCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.frames)
}

func (ts *testServer) closeLastConn() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.conns) == 0 {
		return
	}
	ts.conns[len(ts.conns)-1].Close()
}

func (ts *testServer) close() { ts.srv.Close() }

func (ts *testServer) connCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.conns)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestClientConnectAndCacheInboundTick(t *testing.T) {
	server := newTestServer()
	defer server.close()

	store := cache.NewInProcessStore()
	cfg := DefaultConfig(server.wsURL())
	cfg.HeartbeatInterval = time.Hour
	client := NewClient(cfg, mockCredentials{hash: "h"}, store, zerolog.Nop())

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	waitFor(t, time.Second, func() bool { return server.connCount() == 1 })

	server.broadcast(`{"type":"Tick","data":{"symbol":"GARAN","lastPrice":91.0,"timestamp":1700000000000}}`)

	waitFor(t, time.Second, func() bool {
		entries, _ := store.Recent(context.Background(), "tick:GARAN", 0)
		return len(entries) == 1
	})
}

func TestClientReconnectReplaysSubscriptions(t *testing.T) {
	server := newTestServer()
	defer server.close()

	store := cache.NewInProcessStore()
	cfg := DefaultConfig(server.wsURL())
	cfg.HeartbeatInterval = time.Hour
	cfg.Reconnect.InitialDelay = 10 * time.Millisecond
	cfg.Reconnect.MaxDelay = 50 * time.Millisecond
	client := NewClient(cfg, mockCredentials{hash: "h"}, store, zerolog.Nop())

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	waitFor(t, time.Second, func() bool { return server.connCount() == 1 })

	if err := client.Subscribe(ChannelTick, "GARAN"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.Subscribe(ChannelTrade, "AKBNK"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitFor(t, time.Second, func() bool { return server.frameCount() == 2 })

	events := client.Events()
	server.closeLastConn()

	var reconnected ConnectionEvent
	found := false
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !found {
		select {
		case evt := <-events:
			if evt.Kind == EventReconnected {
				reconnected = evt
				found = true
			}
		case <-time.After(100 * time.Millisecond):
		}
	}
	if !found {
		t.Fatalf("expected a Reconnected event")
	}
	if reconnected.Replay.Succeeded != 2 {
		t.Fatalf("expected 2 subscriptions replayed, got %+v", reconnected.Replay)
	}

	waitFor(t, time.Second, func() bool { return server.frameCount() == 4 })

	if active := client.Subscriptions().Active(); len(active) != 2 {
		t.Fatalf("expected subscription set unchanged after reconnect, got %d", len(active))
	}
}
