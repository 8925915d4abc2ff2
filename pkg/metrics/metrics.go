// Package metrics defines the observability surface described in §6.5:
// request counters and latency histograms, auth cache hit/miss counters,
// an active-handle gauge, and counters for revocations, rate-limit
// rejections, and circuit breaker trips. The concrete Prometheus
// implementation lives in pkg/metrics/prometheus and registers itself
// here at init time, so this package never imports client_golang's
// collector types directly outside of the registry itself.
package metrics

import (
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
)

var (
	registry *promclient.Registry
	enabled  bool
)

// InitRegistry creates the process-wide Prometheus registry and enables
// metrics collection. Must be called before any Metrics instance is
// constructed; servers that never call it get nil Metrics everywhere,
// at zero overhead.
func InitRegistry() *promclient.Registry {
	registry = promclient.NewRegistry()
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return enabled
}

// GetRegistry returns the process-wide registry, or nil if metrics are
// disabled.
func GetRegistry() *promclient.Registry {
	return registry
}

// Metrics is the observability surface the HTTP layer, auth layer, and
// namespace manager report into. New returns nil when metrics are
// disabled; the package-level helpers (RecordHTTPRequest, SetActiveHandles,
// ...) accept a nil Metrics and do nothing, so callers that use them never
// need to branch on whether metrics are enabled. Methods are not callable
// on a nil Metrics.
type Metrics interface {
	// RecordHTTPRequest records one completed HTTP request.
	RecordHTTPRequest(method, path string, status int, tenant string, duration time.Duration)

	// RecordTokenCacheHit records a verification-cache hit.
	RecordTokenCacheHit()
	// RecordTokenCacheMiss records a verification-cache miss that fell
	// through to the metadata service.
	RecordTokenCacheMiss()

	// SetActiveHandles reports the current open-handle count for tenant.
	SetActiveHandles(tenant string, count int)

	// RecordRevocation records a token revocation.
	RecordRevocation()

	// RecordRateLimitRejection records a request rejected by the rate
	// limiter for tenant.
	RecordRateLimitRejection(tenant string)

	// RecordCircuitBreakerTrip records the metadata-client breaker
	// transitioning into the OPEN state.
	RecordCircuitBreakerTrip()
	// SetCircuitBreakerState reports the breaker's current state, one of
	// "closed", "open", "half_open".
	SetCircuitBreakerState(state string)
}

// newPrometheusMetrics is populated by pkg/metrics/prometheus during its
// package init, avoiding an import cycle between the interface package
// and its concrete implementation.
var newPrometheusMetrics func() Metrics

// RegisterMetricsConstructor registers the Prometheus metrics
// constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterMetricsConstructor(constructor func() Metrics) {
	newPrometheusMetrics = constructor
}

// New constructs a Metrics instance, or nil if metrics are disabled.
func New() Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusMetrics()
}

// RecordHTTPRequest is the nil-safe free function form, for call sites
// that hold a possibly-nil Metrics.
func RecordHTTPRequest(m Metrics, method, path string, status int, tenant string, duration time.Duration) {
	if m != nil {
		m.RecordHTTPRequest(method, path, status, tenant, duration)
	}
}

// RecordTokenCacheHit is the nil-safe free function form.
func RecordTokenCacheHit(m Metrics) {
	if m != nil {
		m.RecordTokenCacheHit()
	}
}

// RecordTokenCacheMiss is the nil-safe free function form.
func RecordTokenCacheMiss(m Metrics) {
	if m != nil {
		m.RecordTokenCacheMiss()
	}
}

// SetActiveHandles is the nil-safe free function form.
func SetActiveHandles(m Metrics, tenant string, count int) {
	if m != nil {
		m.SetActiveHandles(tenant, count)
	}
}

// RecordRevocation is the nil-safe free function form.
func RecordRevocation(m Metrics) {
	if m != nil {
		m.RecordRevocation()
	}
}

// RecordRateLimitRejection is the nil-safe free function form.
func RecordRateLimitRejection(m Metrics, tenant string) {
	if m != nil {
		m.RecordRateLimitRejection(tenant)
	}
}

// RecordCircuitBreakerTrip is the nil-safe free function form.
func RecordCircuitBreakerTrip(m Metrics) {
	if m != nil {
		m.RecordCircuitBreakerTrip()
	}
}

// SetCircuitBreakerState is the nil-safe free function form.
func SetCircuitBreakerState(m Metrics, state string) {
	if m != nil {
		m.SetCircuitBreakerState(state)
	}
}
