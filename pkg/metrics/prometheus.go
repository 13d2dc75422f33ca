// Package metrics provides Prometheus metrics for the skillcert evaluation engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 5 * time.Second
)

// Manager manages all Prometheus metrics of the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Evaluation sessions
	sessionsActive       prometheus.Gauge
	evaluationsSubmitted *prometheus.CounterVec
	validationRejections *prometheus.CounterVec

	// Signatures
	signatureCommits *prometheus.CounterVec

	// Level completion cache
	cacheInvalidations *prometheus.CounterVec
	cacheEntries       prometheus.Gauge

	// Roster prefetch
	prefetchEmployees *prometheus.CounterVec
	prefetchDuration  prometheus.Histogram

	// Backend collaborator
	backendRequests        *prometheus.CounterVec
	backendRequestDuration *prometheus.HistogramVec

	// Facade HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "skillcert",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	m.sessionsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("sessions_active"),
		Help:        "Evaluation sessions currently held in memory",
		ConstLabels: labels,
	})

	m.evaluationsSubmitted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("evaluations_submitted_total"),
		Help:        "Evaluation submissions by outcome (saved, failed)",
		ConstLabels: labels,
	}, []string{"outcome"})

	m.validationRejections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("validation_rejections_total"),
		Help:        "Operations rejected locally before any backend call",
		ConstLabels: labels,
	}, []string{"reason"})

	m.signatureCommits = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("signature_commits_total"),
		Help:        "Signature commits by outcome (signed, assigned, failed)",
		ConstLabels: labels,
	}, []string{"outcome"})

	m.cacheInvalidations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("level_cache_invalidations_total"),
		Help:        "Level completion cache invalidations by reason",
		ConstLabels: labels,
	}, []string{"reason"})

	m.cacheEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("level_cache_entries"),
		Help:        "Employees with a cached level completion summary",
		ConstLabels: labels,
	})

	m.prefetchEmployees = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("roster_prefetch_employees_total"),
		Help:        "Roster prefetch results by outcome (applied, discarded, failed)",
		ConstLabels: labels,
	}, []string{"outcome"})

	m.prefetchDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("roster_prefetch_duration_milliseconds"),
		Help:        "Duration of a full roster prefetch run in milliseconds",
		Buckets:     []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		ConstLabels: labels,
	})

	m.backendRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("backend_requests_total"),
		Help:        "Requests sent to the backend service by endpoint, method and status",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.backendRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("backend_request_duration_milliseconds"),
		Help:        "Backend request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"endpoint", "method"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_requests_total"),
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_component_total"),
		Help:        "Errors by component and kind",
		ConstLabels: labels,
	}, []string{"component", "kind"})
}

// UpdateSessionsActive sets the number of in-memory evaluation sessions.
func UpdateSessionsActive(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.sessionsActive.Set(float64(count))
}

// RecordEvaluationSubmitted counts a submission by outcome.
func RecordEvaluationSubmitted(outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.evaluationsSubmitted.WithLabelValues(outcome).Inc()
}

// RecordValidationRejection counts an operation rejected before reaching the backend.
func RecordValidationRejection(reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.validationRejections.WithLabelValues(reason).Inc()
}

// RecordSignatureCommit counts a signature commit by outcome.
func RecordSignatureCommit(outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.signatureCommits.WithLabelValues(outcome).Inc()
}

// RecordCacheInvalidation counts a level cache invalidation.
func RecordCacheInvalidation(reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.cacheInvalidations.WithLabelValues(reason).Inc()
}

// UpdateCacheEntries sets the number of cached level summaries.
func UpdateCacheEntries(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.cacheEntries.Set(float64(count))
}

// RecordPrefetchEmployee counts one employee handled by a roster prefetch.
func RecordPrefetchEmployee(outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.prefetchEmployees.WithLabelValues(outcome).Inc()
}

// RecordPrefetchDuration records the duration of a prefetch run.
func RecordPrefetchDuration(durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.prefetchDuration.Observe(durationMs)
}

// RecordBackendRequest records one backend request.
func RecordBackendRequest(endpoint, method, statusCode string, durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.backendRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.backendRequestDuration.WithLabelValues(endpoint, method).Observe(durationMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordError counts an error attributed to a component.
func RecordError(component, kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// SetRefreshInterval changes how often stat-derived gauges are refreshed.
// Non-positive values keep the current interval.
func SetRefreshInterval(interval time.Duration) {
	WithRefreshInterval(interval)(globalManager)
}

// RefreshInterval returns the refresh period of stat-derived gauges.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}
