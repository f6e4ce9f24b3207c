// Package streaming implements the market-data WebSocket client: the
// authenticated duplex connection, subscription management, and message
// routing into the tick cache. See the cache subpackage for the bounded
// per-symbol storage tier.
package streaming

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/algolab-go/broker-gateway/algolab"
	"github.com/algolab-go/broker-gateway/streaming/cache"
)

// ConnectionEvent is published on Client.Events() for every lifecycle
// transition a caller needs to react to, in particular Reconnected, which
// signals that subscription replay has run.
type ConnectionEvent struct {
	Kind   ConnectionEventKind
	Err    error
	Replay ReplayResult
}

type ConnectionEventKind int

const (
	EventConnected ConnectionEventKind = iota
	EventDisconnected
	EventReconnected
	EventReconnectFailed
)

// ReconnectConfig mirrors the broker's websocket.reconnect.* configuration
// block: exponential backoff with a cap, unlimited attempts by default.
type ReconnectConfig struct {
	Enabled      bool
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int // 0 means unlimited
}

func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Enabled:      true,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  0,
	}
}

// Config bundles everything the Client needs to dial and maintain the
// connection.
type Config struct {
	URL               string
	HeartbeatInterval time.Duration // default 15m, per broker default
	Reconnect         ReconnectConfig
}

func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		HeartbeatInterval: 15 * time.Minute,
		Reconnect:         DefaultReconnectConfig(),
	}
}

// Client is the long-lived authenticated WebSocket connection to the
// broker's market-data feed. Grounded on
// adapter/websocket/saxo_websocket.go's SaxoWebSocketClient: the
// reader/processor goroutine pair, the reconnection-handler singleton, and
// the event-channel notification idiom are kept; Saxo's binary wire
// protocol and HTTP-POST subscription model are replaced with AlgoLab's
// plain-JSON duplex frames.
type Client struct {
	cfg    Config
	creds  algolab.CredentialsSource
	logger zerolog.Logger

	tickCache      cache.Store
	orderBookCache cache.Store
	tradeCache     cache.Store

	subs *SubscriptionManager

	mu          sync.Mutex
	conn        *websocket.Conn
	connected   bool
	closed      bool
	lastFrameAt time.Time

	events chan ConnectionEvent

	reconnectAttempt int
	stopHeartbeat    chan struct{}
	stopReader       chan struct{}
}

// NewClient wires a Client against a single shared Store for all three
// channels; there is no option for a separate Store per channel.
func NewClient(cfg Config, creds algolab.CredentialsSource, store cache.Store, logger zerolog.Logger) *Client {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 15 * time.Minute
	}
	return &Client{
		cfg:            cfg,
		creds:          creds,
		logger:         logger.With().Str("component", "streaming.client").Logger(),
		tickCache:      store,
		orderBookCache: store,
		tradeCache:     store,
		subs:           NewSubscriptionManager(),
		events:         make(chan ConnectionEvent, 8),
	}
}

// Events exposes the connection lifecycle channel.
func (c *Client) Events() <-chan ConnectionEvent { return c.events }

// Subscriptions exposes the manager so callers can query Active().
func (c *Client) Subscriptions() *SubscriptionManager { return c.subs }

// Cache exposes the tick cache store for observability callers (the
// /metrics handler reads total, ticks-per-second and top-symbol stats
// from it).
func (c *Client) Cache() cache.Store { return c.tickCache }

func (c *Client) publish(evt ConnectionEvent) {
	select {
	case c.events <- evt:
	default:
		c.logger.Warn().Msg("connection event dropped, subscriber too slow")
	}
}

// AutoConnectOn starts a goroutine that dials whenever an AuthEvent arrives
// on events, stopping when ctx is canceled.
func (c *Client) AutoConnectOn(ctx context.Context, events <-chan algolab.AuthEvent) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				if evt.State != algolab.Authenticated {
					continue
				}
				if err := c.Connect(ctx); err != nil {
					c.logger.Error().Err(err).Msg("auto-connect after auth event failed")
				}
			}
		}
	}()
}

// Connect dials the broker's market-data endpoint and starts the reader
// and heartbeat goroutines. Safe to call again after a clean Close.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("streaming: connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.closed = false
	c.lastFrameAt = time.Now()
	c.stopHeartbeat = make(chan struct{})
	c.stopReader = make(chan struct{})
	c.reconnectAttempt = 0
	c.mu.Unlock()

	go c.readLoop()
	go c.heartbeatLoop()

	c.publish(ConnectionEvent{Kind: EventConnected})
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	creds := c.creds.Credentials()
	header := make(map[string][]string)
	if creds.Hash != "" {
		header["Authorization"] = []string{creds.Hash}
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	return conn, err
}

// readLoop owns the connection's read side. A read error triggers the
// reconnect loop unless Close() was called first.
func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		stop := c.stopReader
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			c.handleDisconnect(err)
			return
		}

		c.mu.Lock()
		c.lastFrameAt = time.Now()
		c.mu.Unlock()

		msg, ok, decodeErr := decodeInbound(raw)
		if decodeErr != nil {
			c.logger.Warn().Err(decodeErr).Msg("discarding unparseable market-data frame")
			continue
		}
		if !ok {
			continue
		}
		if err := c.store(msg); err != nil {
			c.logger.Warn().Err(err).Str("symbol", msg.Symbol).Msg("failed to cache market-data frame")
		}
	}
}

func (c *Client) store(msg *InboundMessage) error {
	payload, err := msg.payload()
	if err != nil {
		return err
	}

	var store cache.Store
	switch msg.Channel {
	case ChannelTick:
		store = c.tickCache
	case ChannelOrderBook:
		store = c.orderBookCache
	case ChannelTrade:
		store = c.tradeCache
	default:
		return fmt.Errorf("streaming: no cache tier for channel %q", msg.Channel)
	}

	key := cacheKeyFor(msg.Channel, msg.Symbol)
	return store.Add(context.Background(), key, msg.Symbol, payload, time.Now())
}

// heartbeatLoop sends a ping on cfg.HeartbeatInterval and forces a
// reconnect if two consecutive intervals pass with no frame (inbound or
// outbound) observed on the connection.
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	c.mu.Lock()
	stop := c.stopHeartbeat
	c.mu.Unlock()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			silence := time.Since(c.lastFrameAt)
			conn := c.conn
			c.mu.Unlock()

			if silence >= 2*c.cfg.HeartbeatInterval {
				c.logger.Warn().Dur("silence", silence).Msg("missed two heartbeats, forcing reconnect")
				c.handleDisconnect(fmt.Errorf("streaming: heartbeat timeout"))
				return
			}

			if conn == nil {
				continue
			}
			frame, err := encodePingFrame()
			if err != nil {
				continue
			}
			if err := c.writeRaw(frame); err != nil {
				c.logger.Warn().Err(err).Msg("heartbeat ping failed")
			}
		}
	}
}

func (c *Client) writeRaw(frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("streaming: not connected")
	}

	c.mu.Lock()
	c.lastFrameAt = time.Now()
	c.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Subscribe adds (channel, symbol) and sends the subscribe frame.
func (c *Client) Subscribe(channel Channel, symbol string) error {
	return c.subs.Subscribe(Subscription{Channel: channel, Symbol: symbol}, c.sendSubscribeFrame)
}

// Unsubscribe removes (channel, symbol) and sends the unsubscribe frame.
func (c *Client) Unsubscribe(channel Channel, symbol string) error {
	return c.subs.Unsubscribe(Subscription{Channel: channel, Symbol: symbol}, c.sendSubscribeFrame)
}

// SubscribeAll subscribes to every symbol on channel.
func (c *Client) SubscribeAll(channel Channel) error {
	return c.subs.SubscribeAll(channel, c.sendSubscribeFrame)
}

func (c *Client) sendSubscribeFrame(sub Subscription, subscribe bool) error {
	typ := frameUnsubscribe
	if subscribe {
		typ = frameSubscribe
	}
	frame, err := encodeControlFrame(typ, sub)
	if err != nil {
		return err
	}
	return c.writeRaw(frame)
}

// handleDisconnect marks the connection dead, publishes Disconnected, and
// starts the reconnect loop if enabled.
func (c *Client) handleDisconnect(cause error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
	}
	closed := c.closed
	c.mu.Unlock()

	c.publish(ConnectionEvent{Kind: EventDisconnected, Err: cause})

	if closed || !c.cfg.Reconnect.Enabled {
		return
	}
	go c.reconnectWithBackoff()
}

// reconnectWithBackoff retries with exponential backoff
// (initial*multiplier^attempt, capped) up to MaxAttempts, or forever if
// MaxAttempts is 0. Replaces adapter/websocket/connection_manager.go's
// linear attempts*baseDelay backoff with the broker's required
// exponential schedule. On success, replays every held subscription and
// publishes Reconnected.
func (c *Client) reconnectWithBackoff() {
	cfg := c.cfg.Reconnect
	attempt := 0

	for {
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			c.publish(ConnectionEvent{Kind: EventReconnectFailed, Err: fmt.Errorf("streaming: exceeded %d reconnect attempts", cfg.MaxAttempts)})
			return
		}

		delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt)))
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		time.Sleep(delay)
		attempt++

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("reconnect attempt failed")
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.connected = true
		c.closed = false
		c.lastFrameAt = time.Now()
		c.stopHeartbeat = make(chan struct{})
		c.stopReader = make(chan struct{})
		c.reconnectAttempt = 0
		c.mu.Unlock()

		go c.readLoop()
		go c.heartbeatLoop()

		result := c.subs.Replay(c.sendSubscribeFrame)
		c.publish(ConnectionEvent{Kind: EventReconnected, Replay: result})
		return
	}
}

// Close stops the reader/heartbeat goroutines and closes the connection
// cleanly; no reconnect is attempted.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	connected := c.connected
	conn := c.conn
	stopReader := c.stopReader
	stopHeartbeat := c.stopHeartbeat
	c.connected = false
	c.mu.Unlock()

	if !connected {
		return nil
	}
	if stopReader != nil {
		close(stopReader)
	}
	if stopHeartbeat != nil {
		close(stopHeartbeat)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
