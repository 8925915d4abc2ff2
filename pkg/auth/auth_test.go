package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fs9fs/fs9/pkg/auth"
)

func TestVerificationCachePutGet(t *testing.T) {
	cache, err := auth.NewVerificationCache(1024, time.Minute)
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	claims := auth.Claims{Tenant: "t1", User: "alice", Roles: []string{"admin"}, Expiry: time.Now().Add(time.Minute)}
	cache.Put("hash1", claims)

	got, ok := cache.Get("hash1")
	require.True(t, ok)
	assert.Equal(t, "t1", got.Tenant)
	assert.Equal(t, "alice", got.User)
}

// An already-expired claim is never inserted.
func TestVerificationCacheSkipsExpiredClaims(t *testing.T) {
	cache, err := auth.NewVerificationCache(1024, time.Minute)
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	cache.Put("hash1", auth.Claims{Tenant: "t1", Expiry: time.Now().Add(-time.Second)})

	_, ok := cache.Get("hash1")
	assert.False(t, ok)
}

// S5 (spec.md §8): revoking a token must evict it from the verification
// cache so a revoked-but-still-cached positive result is not served.
func TestRevocationInvalidatesCachedEntry(t *testing.T) {
	cache, err := auth.NewVerificationCache(1024, time.Minute)
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	revocations, err := auth.NewRevocationSet(1024, time.Hour)
	require.NoError(t, err)
	t.Cleanup(revocations.Close)

	hash := auth.HashToken("some-token")
	cache.Put(hash, auth.Claims{Tenant: "t1", Expiry: time.Now().Add(time.Hour)})

	_, ok := cache.Get(hash)
	require.True(t, ok, "positive result should be cached before revocation")

	revocations.Revoke(hash)
	cache.Invalidate(hash)

	assert.True(t, revocations.IsRevoked(hash))
	_, ok = cache.Get(hash)
	assert.False(t, ok, "cached claims must not survive revocation")
}

func TestClaimsHasRoleAdminSatisfiesAnyGate(t *testing.T) {
	admin := auth.Claims{Roles: []string{"admin"}}
	assert.True(t, admin.HasRole("operator"))
	assert.True(t, admin.HasRole("admin"))

	plain := auth.Claims{Roles: []string{"operator"}}
	assert.True(t, plain.HasRole("operator"))
	assert.False(t, plain.HasRole("admin"))
}

func TestHashTokenIsStable(t *testing.T) {
	a := auth.HashToken("token-value")
	b := auth.HashToken("token-value")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, auth.HashToken("different-token"))
}
