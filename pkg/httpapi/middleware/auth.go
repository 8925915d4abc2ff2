// Package middleware provides the HTTP middleware layered in front of
// every fs9 API route: authentication, rate limiting, body-size limits,
// and global concurrency, mirroring the structure of the teacher's
// pkg/api/middleware package.
package middleware

import (
	"net/http"
	"strings"

	"github.com/fs9fs/fs9/internal/logger"
	"github.com/fs9fs/fs9/pkg/auth"
	"github.com/fs9fs/fs9/pkg/metaclient"
	"github.com/fs9fs/fs9/pkg/metrics"
)

// extractBearerToken pulls the bearer credential out of the Authorization
// header, as the teacher's own auth middleware does.
func extractBearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return "", false
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// Auth implements spec.md §4.7's five-step authentication flow: extract
// bearer, reject if revoked, consult the verification cache, fall
// through to the metadata-service client on a miss, and attach the
// resulting RequestContext.
func Auth(meta *metaclient.Client, cache *auth.VerificationCache, revocations *auth.RevocationSet, m metrics.Metrics, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := extractBearerToken(r)
			if !ok {
				http.Error(w, "bearer credential required", http.StatusUnauthorized)
				return
			}
			hash := auth.HashToken(token)

			if revocations != nil && revocations.IsRevoked(hash) {
				http.Error(w, "token revoked", http.StatusUnauthorized)
				return
			}

			claims, ok := cache.Get(hash)
			if ok {
				metrics.RecordTokenCacheHit(m)
			} else {
				metrics.RecordTokenCacheMiss(m)
				var err error
				claims, err = meta.ValidateToken(r.Context(), token)
				if err != nil {
					logger.WarnCtx(r.Context(), "token validation failed", logger.Err(err))
					if err == metaclient.ErrCircuitOpen {
						http.Error(w, "metadata service unavailable", http.StatusServiceUnavailable)
						return
					}
					http.Error(w, "invalid or expired token", http.StatusUnauthorized)
					return
				}
				cache.Put(hash, claims)
			}

			rc := &auth.RequestContext{
				Tenant:    claims.Tenant,
				UserID:    claims.User,
				Roles:     claims.Roles,
				TokenHash: hash,
			}
			ctx := auth.WithRequestContext(r.Context(), rc)

			lc := logger.FromContext(ctx)
			if lc == nil {
				lc = logger.NewLogContext(r.RemoteAddr)
			}
			ctx = logger.WithContext(ctx, lc.WithTenant(rc.Tenant, rc.Tenant))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole blocks callers whose RequestContext lacks role (or admin),
// per spec.md §4.7's "role gating happens at handler level."
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := auth.FromContext(r.Context())
			if rc == nil {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			if !rc.HasRole(role) {
				http.Error(w, "insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
