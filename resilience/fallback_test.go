package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFallbackCacheStoreAndGet(t *testing.T) {
	c := NewFallbackCache()

	_, ok := c.Get("k1")
	assert.False(t, ok)

	c.Store("k1", []byte("payload"))
	body, ok := c.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, "payload", string(body))
}

func TestFallbackCacheExpiresAfterTTL(t *testing.T) {
	c := NewFallbackCache()
	c.ttl = 10 * time.Millisecond
	c.Store("k1", []byte("payload"))

	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestFallbackCacheOverwritesEntry(t *testing.T) {
	c := NewFallbackCache()
	c.Store("k1", []byte("first"))
	c.Store("k1", []byte("second"))

	body, ok := c.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, "second", string(body))
}
