// Package auth implements bearer-token authentication for FS9: request
// context construction, role gating, a bounded TTL verification cache, and
// a revocation set, all layered in front of the metadata-service client.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Claims is the result of a successful token validation, whether served
// from cache or freshly resolved through the metadata-service client.
type Claims struct {
	Tenant string    `json:"ns"`
	User   string    `json:"sub"`
	Roles  []string  `json:"roles"`
	Expiry time.Time `json:"exp"`
}

// HasRole reports whether claims grants role, or the admin role (which
// implicitly satisfies every gate).
func (c Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role || r == "admin" {
			return true
		}
	}
	return false
}

// RequestContext is attached to every authenticated request by the auth
// middleware and carries everything a handler needs to know about the
// caller.
type RequestContext struct {
	Tenant    string
	UserID    string
	Roles     []string
	TokenHash string
}

// HasRole reports whether the caller was granted role, or admin.
func (rc RequestContext) HasRole(role string) bool {
	for _, r := range rc.Roles {
		if r == role || r == "admin" {
			return true
		}
	}
	return false
}

type requestContextKey struct{}

// WithRequestContext attaches rc to ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext retrieves the RequestContext attached by the auth
// middleware, or nil if the request was never authenticated.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}

// HashToken computes the stable digest used to key the revocation set and
// verification cache, so raw bearer tokens are never retained in memory
// longer than the validating call.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
