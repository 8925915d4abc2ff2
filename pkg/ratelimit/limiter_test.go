package ratelimit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fs9fs/fs9/pkg/ratelimit"
)

// A disabled Limiters never rejects, regardless of burst.
func TestLimitersDisabledAlwaysAllows(t *testing.T) {
	l := ratelimit.New(false, 1, 1)
	for i := 0; i < 50; i++ {
		ok, _ := l.Allow("tenant", "user")
		assert.True(t, ok)
	}
}

// Under a burst of requests at QPS > limit, at least some must be
// rejected, per spec.md §8's rate limiter property.
func TestLimitersRejectBeyondBurst(t *testing.T) {
	l := ratelimit.New(true, 2, 1000)

	rejected := 0
	for i := 0; i < 10; i++ {
		ok, retry := l.Allow("tenant-a", "user-a")
		if !ok {
			rejected++
			assert.Greater(t, retry.Nanoseconds(), int64(0))
		}
	}
	assert.Greater(t, rejected, 0, "a burst of 10 against a qps=2 bucket should reject some requests")
}

// The per-tenant and per-user buckets are independent: a different
// tenant is not penalized by another tenant's burst.
func TestLimitersAreKeyedIndependently(t *testing.T) {
	l := ratelimit.New(true, 1, 1000)

	ok, _ := l.Allow("tenant-a", "user-a")
	assert.True(t, ok)

	// tenant-a's bucket may now be exhausted, but tenant-b's is untouched.
	ok, _ = l.Allow("tenant-b", "user-b")
	assert.True(t, ok)
}
