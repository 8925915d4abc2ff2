// Package httpapi implements the HTTP surface described by spec.md §6.1:
// the nine VFS operations, mount administration, streaming download and
// upload, plugin administration, and token revocation, all wired behind
// the same chi middleware stack the teacher's pkg/api package uses.
package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fs9fs/fs9/pkg/auth"
	"github.com/fs9fs/fs9/pkg/fsprovider"
	"github.com/fs9fs/fs9/pkg/metaclient"
	"github.com/fs9fs/fs9/pkg/metrics"
	"github.com/fs9fs/fs9/pkg/mountstore"
	"github.com/fs9fs/fs9/pkg/namespace"
	"github.com/fs9fs/fs9/pkg/plugin"
	"github.com/fs9fs/fs9/pkg/ratelimit"
)

// Deps bundles every dependency the router and its handlers need. It is
// assembled once at startup by cmd/fs9d and passed down, the way the
// teacher's NewRouter takes a registry and a jwt service rather than
// reaching for package-level state.
type Deps struct {
	InstanceID string

	Namespaces *namespace.Manager
	Providers  *fsprovider.Factory
	Plugins    *plugin.Manager

	Meta              *metaclient.Client
	VerificationCache *auth.VerificationCache
	Revocations       *auth.RevocationSet
	AuthEnabled       bool

	RateLimiters *ratelimit.Limiters
	Metrics      metrics.Metrics

	Mountstore *mountstore.Store // nil if persistence is disabled

	RequestTimeout        time.Duration
	MaxConcurrentRequests int
	MaxBodySizeBytes      int64
	MaxWriteSizeBytes     int64
}

func (d Deps) requestTimeout() time.Duration {
	if d.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return d.RequestTimeout
}

func (d Deps) maxConcurrentRequests() int {
	if d.MaxConcurrentRequests <= 0 {
		return 1000
	}
	return d.MaxConcurrentRequests
}

func (d Deps) bodyLimit() int64 {
	if d.MaxBodySizeBytes <= 0 {
		return 2 << 20
	}
	return d.MaxBodySizeBytes
}

func (d Deps) writeLimit() int64 {
	if d.MaxWriteSizeBytes <= 0 {
		return 256 << 20
	}
	return d.MaxWriteSizeBytes
}

func (d Deps) registry() *prometheus.Registry {
	return metrics.GetRegistry()
}

func (d Deps) metricsHandler() http.Handler {
	return promhttp.HandlerFor(d.registry(), promhttp.HandlerOpts{})
}

// requestTenant extracts the authenticated tenant from the request
// context for metrics labeling, returning "" for unauthenticated
// requests.
func requestTenant(r *http.Request) string {
	rc := auth.FromContext(r.Context())
	if rc == nil {
		return ""
	}
	return rc.Tenant
}
