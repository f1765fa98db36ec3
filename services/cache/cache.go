package cache

import (
	"errors"
	"strconv"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent
var ErrCacheMiss = errors.New("cache miss")

// CacheService represents a generic cache service
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

// RateLimitBlocks records hosts that answered with a rate-limit status so
// later loads back off without hitting them again.
type RateLimitBlocks struct {
	cache     CacheService
	blockTime time.Duration
}

// NewRateLimitBlocks creates a block list backed by svc. A nil svc disables
// blocking.
func NewRateLimitBlocks(svc CacheService, blockTime time.Duration) *RateLimitBlocks {
	return &RateLimitBlocks{cache: svc, blockTime: blockTime}
}

func blockKey(host string) string {
	return "stockscraper_rate_limited:" + host
}

// Blocked reports whether host is still inside its block window
func (b *RateLimitBlocks) Blocked(host string) bool {
	if b == nil || b.cache == nil {
		return false
	}
	_, err := b.cache.Get(blockKey(host))
	return err == nil
}

// Block starts a block window for host
func (b *RateLimitBlocks) Block(host string) error {
	if b == nil || b.cache == nil {
		return nil
	}
	seconds := strconv.Itoa(int(b.blockTime / time.Second))
	return b.cache.Set(blockKey(host), []byte(seconds), b.blockTime)
}

// BlockTime returns the configured block window
func (b *RateLimitBlocks) BlockTime() time.Duration {
	if b == nil {
		return 0
	}
	return b.blockTime
}
