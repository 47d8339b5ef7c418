// Package metrics exposes Prometheus metrics for the authorization core
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/broker-authz/go-core/pkg/types"
)

// Metrics records authorization activity. All hot-path methods are safe for
// concurrent use and cheap enough to sit on every produce/fetch request.
type Metrics struct {
	decisionsTotal  *prometheus.CounterVec
	decisionLatency prometheus.Histogram
	superuserTotal  prometheus.Counter

	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter

	storeFaultsTotal *prometheus.CounterVec
	mutationsTotal   *prometheus.CounterVec
	epoch            prometheus.Gauge
	bindingsChanged  *prometheus.CounterVec

	activeRequests prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	decisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of authorization decisions by outcome",
		},
		[]string{"decision"},
	)

	// Authorization latency: 1µs to 10ms (sub-millisecond expected)
	decisionLatency := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_microseconds",
			Help:      "Authorization decision latency in microseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000},
		},
	)

	superuserTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "superuser_bypass_total",
			Help:      "Total number of decisions short-circuited by superuser bypass",
		},
	)

	cacheHitsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of decision cache hits",
		},
	)

	cacheMissesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of decision cache misses",
		},
	)

	storeFaultsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "faults_total",
			Help:      "Total number of ACL store faults by type",
		},
		[]string{"type"},
	)

	mutationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "mutations_total",
			Help:      "Total number of ACL mutation batches by operation",
		},
		[]string{"operation"},
	)

	epoch := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "epoch",
			Help:      "Current ACL store mutation epoch",
		},
	)

	bindingsChanged := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "bindings_changed_total",
			Help:      "Total number of ACL bindings added or removed",
		},
		[]string{"operation"},
	)

	activeRequests := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of in-flight authorization requests",
		},
	)

	registry.MustRegister(
		decisionsTotal,
		decisionLatency,
		superuserTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		storeFaultsTotal,
		mutationsTotal,
		epoch,
		bindingsChanged,
		activeRequests,
	)

	return &Metrics{
		decisionsTotal:   decisionsTotal,
		decisionLatency:  decisionLatency,
		superuserTotal:   superuserTotal,
		cacheHitsTotal:   cacheHitsTotal,
		cacheMissesTotal: cacheMissesTotal,
		storeFaultsTotal: storeFaultsTotal,
		mutationsTotal:   mutationsTotal,
		epoch:            epoch,
		bindingsChanged:  bindingsChanged,
		activeRequests:   activeRequests,
		registry:         registry,
	}
}

// RecordDecision records an authorization decision and its latency
func (m *Metrics) RecordDecision(decision types.Decision, duration time.Duration) {
	m.decisionsTotal.WithLabelValues(string(decision)).Inc()
	m.decisionLatency.Observe(float64(duration.Microseconds()))
}

// RecordSuperuserBypass records a superuser fast-path decision
func (m *Metrics) RecordSuperuserBypass() {
	m.superuserTotal.Inc()
}

// RecordCacheHit records a decision cache hit
func (m *Metrics) RecordCacheHit() {
	m.cacheHitsTotal.Inc()
}

// RecordCacheMiss records a decision cache miss
func (m *Metrics) RecordCacheMiss() {
	m.cacheMissesTotal.Inc()
}

// RecordStoreFault records an operational store fault
func (m *Metrics) RecordStoreFault(faultType string) {
	m.storeFaultsTotal.WithLabelValues(faultType).Inc()
}

// RecordMutation records a committed mutation batch
func (m *Metrics) RecordMutation(operation string, bindings int) {
	m.mutationsTotal.WithLabelValues(operation).Inc()
	m.bindingsChanged.WithLabelValues(operation).Add(float64(bindings))
}

// SetEpoch publishes the current store mutation epoch
func (m *Metrics) SetEpoch(epoch uint64) {
	m.epoch.Set(float64(epoch))
}

// IncActiveRequests increments in-flight requests
func (m *Metrics) IncActiveRequests() {
	m.activeRequests.Inc()
}

// DecActiveRequests decrements in-flight requests
func (m *Metrics) DecActiveRequests() {
	m.activeRequests.Dec()
}

// HTTPHandler returns the Prometheus handler for the /metrics endpoint
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
