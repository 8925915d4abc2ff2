package auth

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultRevocationTTL is one hour greater than the longest issuable
// token, so a revoked hash always outlives any token that could still be
// presented bearing it.
const DefaultRevocationTTL = 25 * time.Hour

// RevocationSet is a bounded, TTL'd set of revoked token hashes, backed by
// Ristretto so revoke/is-revoked are cheap, concurrent, and
// self-evicting.
type RevocationSet struct {
	cache *ristretto.Cache[string, struct{}]
	ttl   time.Duration
}

// NewRevocationSet constructs a revocation set with the given capacity
// (default 500k entries) and TTL (default DefaultRevocationTTL).
func NewRevocationSet(capacity int64, ttl time.Duration) (*RevocationSet, error) {
	if capacity <= 0 {
		capacity = 500_000
	}
	if ttl <= 0 {
		ttl = DefaultRevocationTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, struct{}]{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &RevocationSet{cache: cache, ttl: ttl}, nil
}

// Revoke marks hash as revoked for the configured TTL.
func (s *RevocationSet) Revoke(hash string) {
	s.cache.SetWithTTL(hash, struct{}{}, 1, s.ttl)
	s.cache.Wait()
}

// IsRevoked reports whether hash has been revoked and not yet expired.
func (s *RevocationSet) IsRevoked(hash string) bool {
	_, found := s.cache.Get(hash)
	return found
}

// Close releases the underlying cache's background goroutines.
func (s *RevocationSet) Close() {
	s.cache.Close()
}
