package middleware

import (
	"net/http"

	"golang.org/x/sync/semaphore"
)

// Concurrency bounds the number of in-flight requests to max, per
// spec.md §4.10's "global concurrency semaphore." A request that cannot
// acquire a slot before its own context deadline (set by chi's Timeout
// middleware upstream) is reported as a timeout rather than held
// indefinitely.
func Concurrency(max int) func(http.Handler) http.Handler {
	sem := semaphore.NewWeighted(int64(max))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sem.Acquire(r.Context(), 1); err != nil {
				http.Error(w, "request timed out waiting for a concurrency slot", http.StatusGatewayTimeout)
				return
			}
			defer sem.Release(1)
			next.ServeHTTP(w, r)
		})
	}
}
