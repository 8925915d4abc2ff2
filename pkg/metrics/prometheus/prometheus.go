// Package prometheus is the concrete Prometheus implementation of
// pkg/metrics.Metrics, following the teacher's pkg/metrics/prometheus
// package: a struct of promauto-registered collectors, every method
// nil-receiver-safe, self-registering its constructor at package init
// time to avoid an import cycle with pkg/metrics.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fs9fs/fs9/pkg/metrics"
)

func init() {
	metrics.RegisterMetricsConstructor(func() metrics.Metrics { return newInstanceMetrics() })
}

// instanceMetrics is the Prometheus-backed implementation of the
// pkg/metrics.Metrics interface, covering the minimum set in spec.md §6.5.
type instanceMetrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	tokenCacheHits   prometheus.Counter
	tokenCacheMisses prometheus.Counter

	activeHandles *prometheus.GaugeVec

	revocations prometheus.Counter

	rateLimitRejections *prometheus.CounterVec

	circuitBreakerTrips prometheus.Counter
	circuitBreakerState *prometheus.GaugeVec
}

// newInstanceMetrics constructs the Prometheus collectors and registers
// them against the process-wide registry. Returns nil if metrics are not
// enabled (InitRegistry not called), matching the teacher's
// NewCacheMetrics convention.
func newInstanceMetrics() metrics.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &instanceMetrics{
		httpRequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fs9_http_requests_total",
				Help: "Total number of completed HTTP requests",
			},
			[]string{"method", "path", "status", "tenant"},
		),
		httpRequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fs9_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		tokenCacheHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fs9_token_cache_hits_total",
			Help: "Total number of verification-cache hits",
		}),
		tokenCacheMisses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fs9_token_cache_misses_total",
			Help: "Total number of verification-cache misses",
		}),
		activeHandles: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fs9_active_handles",
				Help: "Current number of open handles per tenant",
			},
			[]string{"tenant"},
		),
		revocations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fs9_token_revocations_total",
			Help: "Total number of tokens revoked",
		}),
		rateLimitRejections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fs9_rate_limit_rejections_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"tenant"},
		),
		circuitBreakerTrips: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fs9_circuit_breaker_trips_total",
			Help: "Total number of times the metadata client breaker tripped open",
		}),
		circuitBreakerState: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fs9_circuit_breaker_state",
				Help: "Metadata client breaker state: 1 for the current state label, 0 for the others",
			},
			[]string{"state"},
		),
	}
}

func (m *instanceMetrics) RecordHTTPRequest(method, path string, status int, tenant string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status), tenant).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *instanceMetrics) RecordTokenCacheHit() {
	if m == nil {
		return
	}
	m.tokenCacheHits.Inc()
}

func (m *instanceMetrics) RecordTokenCacheMiss() {
	if m == nil {
		return
	}
	m.tokenCacheMisses.Inc()
}

func (m *instanceMetrics) SetActiveHandles(tenant string, count int) {
	if m == nil {
		return
	}
	m.activeHandles.WithLabelValues(tenant).Set(float64(count))
}

func (m *instanceMetrics) RecordRevocation() {
	if m == nil {
		return
	}
	m.revocations.Inc()
}

func (m *instanceMetrics) RecordRateLimitRejection(tenant string) {
	if m == nil {
		return
	}
	m.rateLimitRejections.WithLabelValues(tenant).Inc()
}

func (m *instanceMetrics) RecordCircuitBreakerTrip() {
	if m == nil {
		return
	}
	m.circuitBreakerTrips.Inc()
}

var breakerStates = []string{"closed", "half_open", "open"}

func (m *instanceMetrics) SetCircuitBreakerState(state string) {
	if m == nil {
		return
	}
	for _, name := range breakerStates {
		if name == state {
			m.circuitBreakerState.WithLabelValues(name).Set(1)
		} else {
			m.circuitBreakerState.WithLabelValues(name).Set(0)
		}
	}
}

var _ metrics.Metrics = (*instanceMetrics)(nil)
