package cache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the optional shared tier, keyed under an "algolab:" prefix.
// Every insert is one pipelined batch: the bounded sorted set for the key
// itself, the global/per-symbol counters, the last-tick and first-tick
// markers, the last-minute sliding window, and the active-symbols set.
// Grounded on adapter/saxo.go's historyCache trio, replacing its single
// in-process map with the redis.Pipeline batching idiom used throughout
// the rest of the pack for multi-key writes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "algolab:"}
}

func (s *RedisStore) zsetKey(key string) string       { return s.prefix + key }
func (s *RedisStore) totalKey() string                { return s.prefix + "metrics:total" }
func (s *RedisStore) perSymbolKey() string            { return s.prefix + "metrics:symbol_counts" }
func (s *RedisStore) lastTickKey() string             { return s.prefix + "metrics:last_tick" }
func (s *RedisStore) firstTickKey() string            { return s.prefix + "metrics:first_tick" }
func (s *RedisStore) recentWindowKey() string         { return s.prefix + "metrics:recent_window" }
func (s *RedisStore) activeSymbolsKey() string        { return s.prefix + "symbols:active" }

func (s *RedisStore) Add(ctx context.Context, key, symbol string, data []byte, ts time.Time) error {
	score := float64(ts.UnixMilli())
	member := fmt.Sprintf("%d:%s", ts.UnixNano(), data)

	pipe := s.client.TxPipeline()

	zkey := s.zsetKey(key)
	pipe.ZAdd(ctx, zkey, redis.Z{Score: score, Member: member})
	pipe.ZRemRangeByRank(ctx, zkey, 0, -int64(MaxItemsPerKey)-1)
	pipe.ZRemRangeByScore(ctx, zkey, "-inf", fmt.Sprintf("%d", ts.Add(-TTL).UnixMilli()))
	pipe.Expire(ctx, zkey, TTL)

	pipe.Incr(ctx, s.totalKey())
	pipe.HIncrBy(ctx, s.perSymbolKey(), symbol, 1)
	pipe.HSet(ctx, s.lastTickKey(), symbol, ts.UnixMilli())
	pipe.HSetNX(ctx, s.firstTickKey(), symbol, ts.UnixMilli())

	pipe.ZAdd(ctx, s.recentWindowKey(), redis.Z{Score: score, Member: member})
	pipe.ZRemRangeByScore(ctx, s.recentWindowKey(), "-inf", fmt.Sprintf("%d", ts.Add(-1*time.Minute).UnixMilli()))

	pipe.SAdd(ctx, s.activeSymbolsKey(), symbol)
	pipe.Expire(ctx, s.activeSymbolsKey(), TTL)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return &cacheErr{err}
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, key string, limit int) ([]Entry, error) {
	zkey := s.zsetKey(key)
	cutoff := fmt.Sprintf("%d", time.Now().Add(-TTL).UnixMilli())

	// Fetch the whole fresh window (at most MaxItemsPerKey entries) and
	// keep the newest limit below, after decode.
	members, err := s.client.ZRangeByScoreWithScores(ctx, zkey, &redis.ZRangeBy{Min: cutoff, Max: "+inf"}).Result()
	if err != nil {
		return nil, &cacheErr{err}
	}

	out := make([]Entry, 0, len(members))
	for _, m := range members {
		raw, ok := m.Member.(string)
		if !ok {
			continue
		}
		idx := indexOfColon(raw)
		if idx < 0 {
			continue
		}
		out = append(out, Entry{
			Data:      []byte(raw[idx+1:]),
			Timestamp: time.UnixMilli(int64(m.Score)),
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func indexOfColon(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

func (s *RedisStore) ActiveSymbols(ctx context.Context) ([]string, error) {
	symbols, err := s.client.SMembers(ctx, s.activeSymbolsKey()).Result()
	if err != nil {
		return nil, &cacheErr{err}
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (s *RedisStore) Metrics(ctx context.Context) (Summary, error) {
	total, err := s.client.Get(ctx, s.totalKey()).Int64()
	if err != nil && err != redis.Nil {
		return Summary{}, &cacheErr{err}
	}

	counts, err := s.client.HGetAll(ctx, s.perSymbolKey()).Result()
	if err != nil {
		return Summary{}, &cacheErr{err}
	}

	firstTicks, err := s.client.HGetAll(ctx, s.firstTickKey()).Result()
	if err != nil {
		return Summary{}, &cacheErr{err}
	}

	recentCount, err := s.client.ZCard(ctx, s.recentWindowKey()).Result()
	if err != nil {
		return Summary{}, &cacheErr{err}
	}

	active, err := s.ActiveSymbols(ctx)
	if err != nil {
		return Summary{}, err
	}

	var earliestMs int64
	for _, v := range firstTicks {
		var ms int64
		if _, scanErr := fmt.Sscanf(v, "%d", &ms); scanErr == nil {
			if earliestMs == 0 || ms < earliestMs {
				earliestMs = ms
			}
		}
	}

	overall := 0.0
	if earliestMs > 0 {
		elapsed := time.Since(time.UnixMilli(earliestMs)).Seconds()
		if elapsed > 0 {
			overall = float64(total) / elapsed
		}
	}

	top := make([]SymbolCount, 0, len(counts))
	for sym, v := range counts {
		var c int64
		fmt.Sscanf(v, "%d", &c)
		top = append(top, SymbolCount{Symbol: sym, Count: c})
	}
	sort.Slice(top, func(i, j int) bool { return top[i].Count > top[j].Count })

	return Summary{
		Total:            total,
		TicksPerSecond:   float64(recentCount) / 60.0,
		OverallPerSecond: overall,
		TopSymbols:       top,
		ActiveSymbols:    active,
	}, nil
}

func (s *RedisStore) SymbolMetrics(ctx context.Context, symbol string) (SymbolSummary, error) {
	countStr, err := s.client.HGet(ctx, s.perSymbolKey(), symbol).Result()
	if err != nil && err != redis.Nil {
		return SymbolSummary{}, &cacheErr{err}
	}
	var count int64
	fmt.Sscanf(countStr, "%d", &count)

	lastStr, err := s.client.HGet(ctx, s.lastTickKey(), symbol).Result()
	if err != nil && err != redis.Nil {
		return SymbolSummary{}, &cacheErr{err}
	}
	var lastMs int64
	fmt.Sscanf(lastStr, "%d", &lastMs)

	var lastTime time.Time
	if lastMs > 0 {
		lastTime = time.UnixMilli(lastMs)
	}

	return SymbolSummary{Count: count, LastTickTime: lastTime}, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

// cacheErr wraps a Redis failure so callers can match it against
// ErrCacheUnavailable with errors.Is for degrade-don't-fail handling.
type cacheErr struct{ err error }

func (e *cacheErr) Error() string        { return fmt.Sprintf("cache: redis tier: %v", e.err) }
func (e *cacheErr) Unwrap() error        { return e.err }
func (e *cacheErr) Is(target error) bool { return target == ErrCacheUnavailable }
