// Package metrics provides Prometheus metrics for the agora ranking and digest engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exported by the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Rescoring
	entitiesRescored *prometheus.CounterVec
	rescoreFailures  *prometheus.CounterVec
	rescoreDuration  prometheus.Histogram
	rescoreLastUnix  prometheus.Gauge

	// Digest pipeline
	digestsSent        *prometheus.CounterVec
	digestsFailed      *prometheus.CounterVec
	digestItems        *prometheus.CounterVec
	digestRunDuration  *prometheus.HistogramVec
	dataInconsistency  *prometheus.CounterVec
	notifierLatency    *prometheus.HistogramVec
	notifierRejections prometheus.Counter
	breakerState       *prometheus.GaugeVec

	// Activity and immediate sends
	notificationEvents *prometheus.CounterVec
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueRejected      prometheus.Counter
	workerActive       prometheus.Gauge
	workerJobs         *prometheus.CounterVec
	duplicateJobs      prometheus.Counter
	invitations        *prometheus.CounterVec

	// Operator HTTP
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // dedicated registry without Go runtime collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager. Collectors are registered on the
// configured registry (prometheus.DefaultRegisterer unless overridden).
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "agora",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.entitiesRescored = m.counterVec("entities_rescored_total", "Scored entities whose score was rewritten", "kind")
	m.rescoreFailures = m.counterVec("rescore_failures_total", "Per-entity score writes that failed", "kind")
	m.rescoreDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rescore_run_duration_seconds",
		Help:        "Wall time of a rescore batch",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
	m.rescoreLastUnix = m.gauge("rescore_last_run_unix", "Unix time of the last completed rescore batch")

	m.digestsSent = m.counterVec("digests_sent_total", "Digest payloads delivered and marked", "kind", "frequency")
	m.digestsFailed = m.counterVec("digests_failed_total", "Digest payloads left pending after a delivery failure", "kind", "frequency")
	m.digestItems = m.counterVec("digest_items_total", "Items included in delivered digests", "item")
	m.digestRunDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "digest_run_duration_seconds",
		Help:        "Wall time of a digest run",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"kind", "frequency"})
	m.dataInconsistency = m.counterVec("data_inconsistencies_total", "Rows skipped because a referenced entity was missing", "component")
	m.notifierLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "notifier_latency_seconds",
		Help:        "Latency of Notifier.Send calls",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"outcome"})
	m.notifierRejections = m.counter("notifier_rejections_total", "Sends rejected by the open circuit breaker")
	m.breakerState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "circuit_breaker_state",
		Help:        "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		ConstLabels: m.constLabels,
	}, []string{"name"})

	m.notificationEvents = m.counterVec("notification_events_total", "Notification events created or refreshed", "kind")
	m.queueSize = m.gauge("queue_size", "Immediate-send jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Immediate-send queue capacity")
	m.queueRejected = m.counter("queue_rejected_total", "Immediate-send jobs rejected by a full or closed queue")
	m.workerActive = m.gauge("worker_active_count", "Immediate-send workers running")
	m.workerJobs = m.counterVec("worker_jobs_total", "Immediate-send jobs handled by workers", "outcome")
	m.duplicateJobs = m.counter("duplicate_jobs_total", "Immediate-send jobs skipped as duplicates")
	m.invitations = m.counterVec("invitations_total", "Community invitations by outcome", "outcome")

	m.httpRequests = m.counterVec("http_requests_total", "Operator HTTP requests", "endpoint", "method", "status")
	m.httpDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_seconds",
		Help:        "Operator HTTP request latency",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status"})
	m.httpErrors = m.counterVec("http_errors_total", "Operator HTTP responses with status >= 400", "endpoint", "type")
}

// RecordEntityRescored counts a successful score write for kind ("post"/"comment").
func RecordEntityRescored(kind string) {
	globalManager.entitiesRescored.WithLabelValues(kind).Inc()
}

// RecordRescoreFailure counts a failed score write.
func RecordRescoreFailure(kind string) {
	globalManager.rescoreFailures.WithLabelValues(kind).Inc()
}

// ObserveRescoreRun records the duration of a finished rescore batch.
func ObserveRescoreRun(seconds float64, finishedUnix int64) {
	globalManager.rescoreDuration.Observe(seconds)
	globalManager.rescoreLastUnix.Set(float64(finishedUnix))
}

// RecordDigestSent counts a delivered digest. kind is "notification" or "newsletter".
func RecordDigestSent(kind, frequency string) {
	globalManager.digestsSent.WithLabelValues(kind, frequency).Inc()
}

// RecordDigestFailed counts a digest left pending for the next cycle.
func RecordDigestFailed(kind, frequency string) {
	globalManager.digestsFailed.WithLabelValues(kind, frequency).Inc()
}

// RecordDigestItems adds n delivered items of the given type ("notification"/"chat").
func RecordDigestItems(item string, n int) {
	globalManager.digestItems.WithLabelValues(item).Add(float64(n))
}

// ObserveDigestRun records the duration of a digest run.
func ObserveDigestRun(kind, frequency string, seconds float64) {
	globalManager.digestRunDuration.WithLabelValues(kind, frequency).Observe(seconds)
}

// RecordDataInconsistency counts a skipped row.
func RecordDataInconsistency(component string) {
	globalManager.dataInconsistency.WithLabelValues(component).Inc()
}

// ObserveNotifierLatency records a Notifier call. outcome is "ok" or "error".
func ObserveNotifierLatency(outcome string, seconds float64) {
	globalManager.notifierLatency.WithLabelValues(outcome).Observe(seconds)
}

// RecordNotifierRejection counts a send short-circuited by the breaker.
func RecordNotifierRejection() {
	globalManager.notifierRejections.Inc()
}

// UpdateBreakerState sets the breaker state gauge.
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordNotificationEvent counts an event created or refreshed by activity.
func RecordNotificationEvent(kind string) {
	globalManager.notificationEvents.WithLabelValues(kind).Inc()
}

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected counts a rejected enqueue.
func RecordQueueRejected() {
	globalManager.queueRejected.Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordWorkerJob counts a job outcome ("sent", "failed").
func RecordWorkerJob(outcome string) {
	globalManager.workerJobs.WithLabelValues(outcome).Inc()
}

// RecordDuplicateJob counts a job skipped by the deduper.
func RecordDuplicateJob() {
	globalManager.duplicateJobs.Inc()
}

// RecordInvitation counts an invitation: "sent", "failed" or "invalid".
func RecordInvitation(outcome string) {
	globalManager.invitations.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest counts a request and observes its latency.
func RecordHTTPRequest(endpoint, method, status string, seconds float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
	globalManager.httpDuration.WithLabelValues(endpoint, method, status).Observe(seconds)
}

// RecordHTTPError counts an error response by type.
func RecordHTTPError(endpoint, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, errorType).Inc()
}

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
