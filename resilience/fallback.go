package resilience

import (
	"sync"
	"time"
)

// cachedResponse is the generalized form of saxo.go's
// cachedHistoricalData{Data, Timestamp} pair: a raw last-good payload
// plus the time it was captured.
type cachedResponse struct {
	body       []byte
	capturedAt time.Time
}

// FallbackCache is a short-TTL last-good-response store consulted when
// the resilience envelope refuses or exhausts a call. Generalized from
// saxo.go's single 1-hour history cache (historyCache map + cacheMutex +
// cacheExpiry) into a per-endpoint-key, 5-minute-TTL store.
type FallbackCache struct {
	mu      sync.RWMutex
	entries map[string]cachedResponse
	ttl     time.Duration
}

// NewFallbackCache builds a cache with a default 5-minute TTL.
func NewFallbackCache() *FallbackCache {
	return &FallbackCache{
		entries: make(map[string]cachedResponse),
		ttl:     5 * time.Minute,
	}
}

// Store remembers the latest successful response body for key.
func (c *FallbackCache) Store(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedResponse{body: body, capturedAt: time.Now()}
}

// Get returns the cached body for key if it exists and is within TTL.
func (c *FallbackCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.capturedAt) > c.ttl {
		return nil, false
	}
	return entry.body, true
}
