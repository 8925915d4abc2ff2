package auth

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// VerificationCache is a bounded LRU cache of positive token-validation
// results, keyed by token hash, so a hot token does not round-trip to the
// metadata service on every request.
type VerificationCache struct {
	cache  *ristretto.Cache[string, Claims]
	maxTTL time.Duration
}

// NewVerificationCache constructs a verification cache with the given
// capacity (default 100k entries) and a ceiling on how long any entry may
// live regardless of the token's own remaining lifetime.
func NewVerificationCache(capacity int64, maxTTL time.Duration) (*VerificationCache, error) {
	if capacity <= 0 {
		capacity = 100_000
	}
	if maxTTL <= 0 {
		maxTTL = 10 * time.Minute
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, Claims]{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &VerificationCache{cache: cache, maxTTL: maxTTL}, nil
}

// Get returns the cached claims for hash, if present and unexpired.
func (c *VerificationCache) Get(hash string) (Claims, bool) {
	return c.cache.Get(hash)
}

// Put inserts claims for hash with TTL = min(claim-remaining-lifetime,
// cache-max-TTL).
func (c *VerificationCache) Put(hash string, claims Claims) {
	ttl := time.Until(claims.Expiry)
	if ttl <= 0 {
		return
	}
	if ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	c.cache.SetWithTTL(hash, claims, 1, ttl)
	c.cache.Wait()
}

// Invalidate evicts hash from the cache, used when a token is revoked so a
// still-cached positive result cannot outlive the revocation.
func (c *VerificationCache) Invalidate(hash string) {
	c.cache.Del(hash)
}

// Close releases the underlying cache's background goroutines.
func (c *VerificationCache) Close() {
	c.cache.Close()
}
