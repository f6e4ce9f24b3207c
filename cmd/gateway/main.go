// Command gateway is the broker-integration gateway entrypoint: it loads
// configuration, wires the resilience envelope, the AlgoLab REST client,
// auth/order/market-data services, the optional streaming client and
// Redis cache tier, and the session store, then serves the HTTP surface.
// Grounded on examples/basic_auth/main.go's sequential wiring shape,
// generalized from a one-shot demo into a long-running server per
// aristath-sentinel/internal/server/server.go's Start/Shutdown lifecycle.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/algolab-go/broker-gateway/algolab"
	"github.com/algolab-go/broker-gateway/crypto"
	"github.com/algolab-go/broker-gateway/internal/config"
	"github.com/algolab-go/broker-gateway/internal/httpapi"
	"github.com/algolab-go/broker-gateway/resilience"
	"github.com/algolab-go/broker-gateway/sessionstore"
	"github.com/algolab-go/broker-gateway/sessionstore/dbstore"
	"github.com/algolab-go/broker-gateway/sessionstore/filestore"
	"github.com/algolab-go/broker-gateway/streaming"
	"github.com/algolab-go/broker-gateway/streaming/cache"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to an optional YAML config overlay")
		addr       = flag.String("addr", ":8080", "http listen address")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if err := run(*configPath, *addr, logger); err != nil {
		logger.Fatal().Err(err).Msg("gateway exited")
	}
}

func run(configPath, addr string, logger zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	encryptor, err := crypto.NewEncryptor(cfg.API.Key)
	if err != nil {
		return fmt.Errorf("build encryptor: %w", err)
	}

	envelope := resilience.NewEnvelope(
		resilience.NewLimiter(cfg.API.RateLimit),
		resilience.NewBreaker(logger),
		resilience.NewRetryPolicy(logger),
		resilience.NewFallbackCache(),
		logger,
	)

	client := algolab.NewClient(cfg.API.URL, cfg.API.Hostname, cfg.API.Key, envelope, logger)

	store, err := buildSessionStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build session store: %w", err)
	}
	defer store.Close()

	authService := algolab.NewAuthService(client, encryptor, store, cfg.Auth.Username, cfg.Auth.RefreshInterval, logger)
	orderService := algolab.NewOrderService(client)
	marketDataService := algolab.NewMarketDataService(client)

	if cfg.Auth.AutoLogin {
		if !authService.RestoreSession(ctx) {
			logger.Warn().Msg("no usable persisted session; waiting for an explicit login/otp call")
		}
	}
	if cfg.Auth.KeepAlive {
		authService.StartKeepAlive(ctx)
		defer authService.Stop()
	}

	var streamClient *streaming.Client
	if cfg.WebSocket.Enabled {
		tickStore, cacheCloser, err := buildCacheStore(cfg)
		if err != nil {
			return fmt.Errorf("build cache store: %w", err)
		}
		if cacheCloser != nil {
			defer cacheCloser.Close()
		}

		wsCfg := streaming.Config{
			URL:               cfg.API.WebSocketURL,
			HeartbeatInterval: cfg.WebSocket.HeartbeatInterval,
			Reconnect: streaming.ReconnectConfig{
				Enabled:      cfg.WebSocket.Reconnect.Enabled,
				InitialDelay: cfg.WebSocket.Reconnect.InitialDelay,
				MaxDelay:     cfg.WebSocket.Reconnect.MaxDelay,
				Multiplier:   cfg.WebSocket.Reconnect.Multiplier,
				MaxAttempts:  cfg.WebSocket.Reconnect.MaxAttempts,
			},
		}
		streamClient = streaming.NewClient(wsCfg, client, tickStore, logger)

		if cfg.WebSocket.AutoConnect {
			streamClient.AutoConnectOn(ctx, authService.Events())
		}
	}

	var wsConnected atomic.Bool
	if streamClient != nil {
		wsConnected.Store(true)
		go trackConnectionState(ctx, streamClient, &wsConnected)
	}

	healthService := algolab.NewHealthService(
		authService,
		websocketStatusFunc(streamClient, &wsConnected),
		nil,
		nil,
	)

	server := httpapi.New(httpapi.Deps{
		Addr:       addr,
		Auth:       authService,
		Orders:     orderService,
		MarketData: marketDataService,
		Health:     healthService,
		Client:     client,
		Stream:     streamClient,
		Logger:     logger,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownErr := server.Shutdown(shutdownCtx)
	authService.Clear(shutdownCtx, "SHUTDOWN")
	return shutdownErr
}

func buildSessionStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (sessionstore.Store, error) {
	switch cfg.Session.Storage {
	case config.SessionStorageFile:
		return filestore.New(cfg.Session.FilePath, logger)
	default:
		pool, err := pgxpool.New(ctx, os.Getenv("ALGOLAB_DATABASE_URL"))
		if err != nil {
			return nil, fmt.Errorf("connect session database: %w", err)
		}
		return dbstore.New(pool, dbstore.Config{
			RetentionDays: cfg.Session.RetentionDays,
			CleanupCron:   cfg.Session.CleanupCron,
			AutoCleanup:   cfg.Session.AutoCleanup,
		}, logger)
	}
}

// buildCacheStore returns the in-process tick cache tier, or, when
// cfg.Cache.Enabled, the Redis-backed tier alone in its place.
func buildCacheStore(cfg config.Config) (cache.Store, io.Closer, error) {
	if !cfg.Cache.Enabled {
		return cache.NewInProcessStore(), nopCloser{}, nil
	}

	opts, err := redis.ParseURL(cfg.Cache.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	return cache.NewRedisStore(redis.NewClient(opts)), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// trackConnectionState is the single consumer of streamClient.Events(),
// mirroring the connected/disconnected flag into wsConnected so
// HealthService can read it without draining events other callers need.
func trackConnectionState(ctx context.Context, c *streaming.Client, wsConnected *atomic.Bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.Events():
			if !ok {
				return
			}
			switch evt.Kind {
			case streaming.EventConnected, streaming.EventReconnected:
				wsConnected.Store(true)
			case streaming.EventDisconnected, streaming.EventReconnectFailed:
				wsConnected.Store(false)
			}
		}
	}
}

func websocketStatusFunc(c *streaming.Client, wsConnected *atomic.Bool) algolab.WebsocketStatusFunc {
	if c == nil {
		return nil
	}
	return wsConnected.Load
}
