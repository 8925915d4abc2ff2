package middleware

import (
	"net/http"
	"strconv"

	"github.com/fs9fs/fs9/pkg/auth"
	"github.com/fs9fs/fs9/pkg/metrics"
	"github.com/fs9fs/fs9/pkg/ratelimit"
)

// RateLimit checks the per-tenant and per-user token buckets described in
// spec.md §4.10, rejecting with 429 and a Retry-After header when either
// is exhausted. Must run after Auth, since it needs the RequestContext.
func RateLimit(limiters *ratelimit.Limiters, m metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiters == nil || !limiters.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			rc := auth.FromContext(r.Context())
			var tenant, user string
			if rc != nil {
				tenant, user = rc.Tenant, rc.UserID
			}

			if ok, retry := limiters.Allow(tenant, user); !ok {
				metrics.RecordRateLimitRejection(m, tenant)
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds()+1)))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
