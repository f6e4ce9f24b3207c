// Package httpapi exposes the gateway's operations over HTTP. It is thin
// glue, not a new component: the core (AuthService, OrderService,
// MarketDataService, streaming.Client, HealthService) does the work, this
// package only routes requests to it. Grounded on
// aristath-sentinel/internal/server/server.go's chi.Mux-plus-middleware
// shape and abdulloh5007-tradepl/internal/httpserver/router.go's
// route-grouping idiom.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/algolab-go/broker-gateway/algolab"
	"github.com/algolab-go/broker-gateway/streaming"
)

// Server wires every exposed-by-core operation behind a chi router.
type Server struct {
	router *chi.Mux
	srv    *http.Server
	logger zerolog.Logger

	auth       *algolab.AuthService
	orders     *algolab.OrderService
	marketData *algolab.MarketDataService
	health     *algolab.HealthService
	client     *algolab.Client
	stream     *streaming.Client
}

// Deps bundles every service the HTTP surface calls into.
type Deps struct {
	Addr       string
	Auth       *algolab.AuthService
	Orders     *algolab.OrderService
	MarketData *algolab.MarketDataService
	Health     *algolab.HealthService
	Client     *algolab.Client   // used for /metrics breaker counts
	Stream     *streaming.Client // nil if websocket.enabled is false
	Logger     zerolog.Logger
}

func New(deps Deps) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		logger:     deps.Logger.With().Str("component", "httpapi").Logger(),
		auth:       deps.Auth,
		orders:     deps.Orders,
		marketData: deps.MarketData,
		health:     deps.Health,
		client:     deps.Client,
		stream:     deps.Stream,
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.routes()

	s.srv = &http.Server{
		Addr:         deps.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/metrics", s.handleMetrics)

	s.router.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/otp", s.handleVerifyOtp)
		r.Post("/refresh", s.handleRefresh)
	})

	s.router.Route("/api/orders", func(r chi.Router) {
		r.Post("/", s.handleSendOrder)
		r.Put("/{orderID}", s.handleModifyOrder)
		r.Delete("/{orderID}", s.handleCancelOrder)
	})

	s.router.Route("/api/marketdata", func(r chi.Router) {
		r.Get("/positions", s.handlePositions)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/equity", s.handleEquity)
		r.Get("/candles", s.handleCandles)
	})

	s.router.Route("/api/subscriptions", func(r chi.Router) {
		r.Post("/", s.handleSubscribe)
		r.Delete("/", s.handleUnsubscribe)
		r.Get("/", s.handleActiveSubscriptions)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// Start runs ListenAndServe, blocking until the server stops.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.srv.Addr).Msg("starting gateway http server")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpapi: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
