package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// symbolBuffer is a concurrent FIFO for one cache key, trimmed by size and
// age on both insert and read.
type symbolBuffer struct {
	mu      sync.Mutex
	entries []Entry
}

func (b *symbolBuffer) add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	b.trimLocked()
}

func (b *symbolBuffer) recent(limit int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trimLocked()

	if limit <= 0 || limit > len(b.entries) {
		limit = len(b.entries)
	}
	out := make([]Entry, limit)
	copy(out, b.entries[len(b.entries)-limit:])
	return out
}

func (b *symbolBuffer) trimLocked() {
	cutoff := time.Now().Add(-TTL)
	start := 0
	for start < len(b.entries) && b.entries[start].Timestamp.Before(cutoff) {
		start++
	}
	if start > 0 {
		b.entries = b.entries[start:]
	}
	if len(b.entries) > MaxItemsPerKey {
		excess := len(b.entries) - MaxItemsPerKey
		b.entries = b.entries[excess:]
	}
}

// InProcessStore is the in-process tier: a sync.Map of per-key FIFO
// buffers plus plain-Go counters for the metrics view. No teacher
// equivalent; generalized from saxo.go's single historyCache map.
type InProcessStore struct {
	buffers sync.Map // key string -> *symbolBuffer

	mu             sync.Mutex
	total          int64
	perSymbol      map[string]int64
	lastTickTime   map[string]time.Time
	firstTickTime  map[string]time.Time
	recentInsertTs []time.Time // last minute of insert timestamps, global
	activeSymbols  map[string]time.Time
}

func NewInProcessStore() *InProcessStore {
	return &InProcessStore{
		perSymbol:     make(map[string]int64),
		lastTickTime:  make(map[string]time.Time),
		firstTickTime: make(map[string]time.Time),
		activeSymbols: make(map[string]time.Time),
	}
}

func (s *InProcessStore) Add(_ context.Context, key, symbol string, data []byte, ts time.Time) error {
	buf, _ := s.buffers.LoadOrStore(key, &symbolBuffer{})
	buf.(*symbolBuffer).add(Entry{Data: data, Timestamp: ts})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.perSymbol[symbol]++
	s.lastTickTime[symbol] = ts
	if _, ok := s.firstTickTime[symbol]; !ok {
		s.firstTickTime[symbol] = ts
	}
	s.activeSymbols[symbol] = ts

	s.recentInsertTs = append(s.recentInsertTs, ts)
	s.trimRecentLocked(ts)
	return nil
}

func (s *InProcessStore) trimRecentLocked(now time.Time) {
	cutoff := now.Add(-1 * time.Minute)
	start := 0
	for start < len(s.recentInsertTs) && s.recentInsertTs[start].Before(cutoff) {
		start++
	}
	if start > 0 {
		s.recentInsertTs = s.recentInsertTs[start:]
	}
}

func (s *InProcessStore) Recent(_ context.Context, key string, limit int) ([]Entry, error) {
	v, ok := s.buffers.Load(key)
	if !ok {
		return nil, nil
	}
	return v.(*symbolBuffer).recent(limit), nil
}

func (s *InProcessStore) ActiveSymbols(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-TTL)
	symbols := make([]string, 0, len(s.activeSymbols))
	for sym, last := range s.activeSymbols {
		if last.After(cutoff) {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (s *InProcessStore) Metrics(_ context.Context) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trimRecentLocked(time.Now())

	var earliest time.Time
	for _, t := range s.firstTickTime {
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}

	overall := 0.0
	if !earliest.IsZero() {
		elapsed := time.Since(earliest).Seconds()
		if elapsed > 0 {
			overall = float64(s.total) / elapsed
		}
	}

	top := make([]SymbolCount, 0, len(s.perSymbol))
	for sym, count := range s.perSymbol {
		top = append(top, SymbolCount{Symbol: sym, Count: count})
	}
	sort.Slice(top, func(i, j int) bool { return top[i].Count > top[j].Count })

	active := make([]string, 0, len(s.activeSymbols))
	cutoff := time.Now().Add(-TTL)
	for sym, last := range s.activeSymbols {
		if last.After(cutoff) {
			active = append(active, sym)
		}
	}
	sort.Strings(active)

	return Summary{
		Total:            s.total,
		TicksPerSecond:   float64(len(s.recentInsertTs)) / 60.0,
		OverallPerSecond: overall,
		TopSymbols:       top,
		ActiveSymbols:    active,
	}, nil
}

func (s *InProcessStore) SymbolMetrics(_ context.Context, symbol string) (SymbolSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SymbolSummary{
		Count:        s.perSymbol[symbol],
		LastTickTime: s.lastTickTime[symbol],
	}, nil
}

func (s *InProcessStore) Close() error { return nil }
