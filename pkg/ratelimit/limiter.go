// Package ratelimit implements the token-bucket request limiting the HTTP
// layer applies per tenant and per user, grounded on golang.org/x/time/rate
// the way this codebase's object-store backends already rate limit
// outbound calls.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter maintains one token bucket per key (tenant name or user
// id), lazily created on first use.
type KeyedLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	qps      float64
	burst    int
}

// NewKeyedLimiter constructs a limiter granting qps requests per second
// per key, with a burst capacity equal to qps (truncated to an integer,
// minimum 1).
func NewKeyedLimiter(qps float64) *KeyedLimiter {
	burst := int(qps)
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiter{buckets: make(map[string]*rate.Limiter), qps: qps, burst: burst}
}

func (k *KeyedLimiter) bucket(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	b, ok := k.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(k.qps), k.burst)
		k.buckets[key] = b
	}
	return b
}

// Allow reports whether a request for key may proceed immediately,
// consuming a token if so. Callers that are rejected should respond 429
// with Retry-After computed from Reserve, not by blocking the request.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.bucket(key).Allow()
}

// RetryAfter returns how long the caller should wait before retrying a
// request for key that was just rejected by Allow.
func (k *KeyedLimiter) RetryAfter(key string) time.Duration {
	r := k.bucket(key).Reserve()
	defer r.Cancel()
	return r.Delay()
}

// Limiters bundles the per-tenant and per-user limiters the rate-limit
// middleware consults after a request has been authenticated.
type Limiters struct {
	Enabled   bool
	Namespace *KeyedLimiter
	User      *KeyedLimiter
}

// New constructs the pair of limiters described in §4.10, or a disabled
// Limiters if enabled is false.
func New(enabled bool, namespaceQPS, userQPS float64) *Limiters {
	if !enabled {
		return &Limiters{Enabled: false}
	}
	return &Limiters{
		Enabled:   true,
		Namespace: NewKeyedLimiter(namespaceQPS),
		User:      NewKeyedLimiter(userQPS),
	}
}

// Allow checks both the tenant and user buckets, returning false (and the
// longer of the two suggested retry delays) if either is exhausted.
func (l *Limiters) Allow(tenant, user string) (bool, time.Duration) {
	if !l.Enabled {
		return true, 0
	}

	nsOK := l.Namespace.Allow(tenant)
	userOK := l.User.Allow(user)
	if nsOK && userOK {
		return true, 0
	}

	retry := l.Namespace.RetryAfter(tenant)
	if d := l.User.RetryAfter(user); d > retry {
		retry = d
	}
	return false, retry
}
