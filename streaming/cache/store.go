// Package cache implements the bounded per-symbol tick/orderbook/trade
// storage tier, with an in-process and an optional Redis-backed
// implementation, plus the metrics the Redis tier maintains alongside
// every insert. Grounded on adapter/saxo.go's historyCache/cacheMutex/
// cacheExpiry trio, generalized from a single 1-hour history map to a
// per-key bounded, time-sorted, TTL'd collection.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheUnavailable is returned by a tier that cannot currently serve
// requests (e.g. Redis connection down). Callers degrade to the next tier
// or skip; this error is never fatal.
var ErrCacheUnavailable = errors.New("cache: tier unavailable")

// MaxItemsPerKey and TTL are the bound and freshness window every tier
// enforces for every (channel, symbol) key.
const (
	MaxItemsPerKey = 100
	TTL            = 5 * time.Minute
)

// Entry is one opaque stored item: the raw encoded payload plus the time
// it arrived. The cache tiers do not need to know whether a payload is a
// TickDatum, OrderBookDatum, or TradeDatum; the streaming client decodes.
type Entry struct {
	Data      []byte
	Timestamp time.Time
}

// Store is the contract both the in-process and Redis tiers implement.
// Key is the caller-constructed "tick:<symbol>" / "orderbook:<symbol>" /
// "trade:<symbol>" string.
type Store interface {
	// Add appends an entry for key/symbol, trimming to MaxItemsPerKey and
	// evicting anything older than TTL, and updates the Redis-tier
	// metrics in the same pipelined batch where applicable.
	Add(ctx context.Context, key, symbol string, data []byte, ts time.Time) error

	// Recent returns up to limit entries for key, newest last, excluding
	// anything older than TTL.
	Recent(ctx context.Context, key string, limit int) ([]Entry, error)

	// ActiveSymbols returns the symbols that have had at least one insert
	// within the active-symbol TTL window.
	ActiveSymbols(ctx context.Context) ([]string, error)

	// Metrics returns the real-time summary: totals, last-minute rate,
	// overall rate since first tick, and top-N symbols by count.
	Metrics(ctx context.Context) (Summary, error)

	// SymbolMetrics returns per-symbol count and last-seen time.
	SymbolMetrics(ctx context.Context, symbol string) (SymbolSummary, error)

	// Close releases any resources (Redis client) held by the tier.
	Close() error
}

// Summary is the real-time cross-symbol metrics snapshot.
type Summary struct {
	Total            int64
	TicksPerSecond   float64
	OverallPerSecond float64
	TopSymbols       []SymbolCount
	ActiveSymbols    []string
}

// SymbolCount pairs a symbol with its tick count, used for the top-N view.
type SymbolCount struct {
	Symbol string
	Count  int64
}

// SymbolSummary is the per-symbol metrics view.
type SymbolSummary struct {
	Count        int64
	LastTickTime time.Time
}
