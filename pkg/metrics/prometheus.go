// Package metrics provides Prometheus metrics for the tabulation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes used as the "outcome" label.
const (
	OutcomeAccepted     = "accepted"
	OutcomeDuplicate    = "duplicate"
	OutcomeRejected     = "rejected"
	OutcomeNotEligible  = "not_eligible"
	OutcomeBackpressure = "backpressure"
)

// Manager manages all Prometheus metrics for the tabulation service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Scoring
	scoreSubmissions *prometheus.CounterVec
	scoresRecorded   *prometheus.CounterVec
	claimsHeld       prometheus.Gauge
	activeCandidates prometheus.Gauge

	// Ranking and export
	rankingComputations *prometheus.CounterVec
	rankingLatency      prometheus.Histogram
	filterFallbacks     prometheus.Counter
	exports             *prometheus.CounterVec
	exportFailures      *prometheus.CounterVec

	// Repository
	repositoryRecordsTotal            prometheus.Gauge
	repositoryUpdateLatency           prometheus.Histogram
	repositorySnapshotRebuildDuration prometheus.Histogram
	repositorySnapshotCount           prometheus.Counter

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
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
		namespace:        "tabulator",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

// histogramOpts uses the configured buckets unless explicit ones are given.
func (m *Manager) histogramOpts(name, help string, buckets ...float64) prometheus.HistogramOpts {
	if len(buckets) == 0 {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// Latency buckets in milliseconds.
var msBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000} //nolint:gochecknoglobals // shared bucket layout

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.scoreSubmissions = auto.NewCounterVec(
		m.counterOpts("score_submissions_total", "Score submissions by category and outcome"),
		[]string{"category", "outcome"},
	)
	m.scoresRecorded = auto.NewCounterVec(
		m.counterOpts("scores_recorded_total", "Score records persisted by category"),
		[]string{"category"},
	)
	m.claimsHeld = auto.NewGauge(m.gaugeOpts("submission_claims", "Number of (candidate, judge, category) claims held by the deduper"))
	m.activeCandidates = auto.NewGauge(m.gaugeOpts("active_candidates", "Number of active candidates"))

	m.rankingComputations = auto.NewCounterVec(
		m.counterOpts("ranking_computations_total", "Ranking reports computed by filter and gender"),
		[]string{"filter", "gender"},
	)
	m.rankingLatency = auto.NewHistogram(m.histogramOpts("ranking_latency_ms", "Time to compute a ranking report in milliseconds", msBuckets...))
	m.filterFallbacks = auto.NewCounter(m.counterOpts("filter_fallbacks_total", "Ranking requests whose filter name was unknown"))
	m.exports = auto.NewCounterVec(m.counterOpts("exports_total", "Rendered exports by format"), []string{"format"})
	m.exportFailures = auto.NewCounterVec(m.counterOpts("export_failures_total", "Failed exports by format"), []string{"format"})

	m.repositoryRecordsTotal = auto.NewGauge(m.gaugeOpts("repository_records_total", "Number of score records stored"))
	m.repositoryUpdateLatency = auto.NewHistogram(m.histogramOpts("repository_update_latency_ms", "Repository write latency in milliseconds", msBuckets...))
	m.repositorySnapshotRebuildDuration = auto.NewHistogram(m.histogramOpts("repository_snapshot_rebuild_ms", "Time to rebuild a read snapshot in milliseconds", msBuckets...))
	m.repositorySnapshotCount = auto.NewCounter(m.counterOpts("repository_snapshots_total", "Number of read snapshots built"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current number of records waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_percent", "Queue utilization in percent"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Records enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Records dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Rejected enqueue attempts"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_ms", "Enqueue latency in milliseconds", msBuckets...))

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of running workers"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("worker_idle_count", "Number of idle workers"))
	m.workerMessagesPerSecond = auto.NewGauge(m.gaugeOpts("worker_messages_per_second", "Records persisted per second"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_ms", "Per-record persist latency in milliseconds", msBuckets...))
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Records that failed to persist"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_ms", "HTTP request duration in milliseconds", msBuckets...),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Errors by type and severity"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "HTTP errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)
	m.errorLatency = auto.NewHistogramVec(
		m.histogramOpts("error_latency_ms", "Latency of failed operations in milliseconds", msBuckets...),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Allocated heap bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_ms", "Average GC pause in milliseconds", msBuckets...))
}

// Scoring

// RecordScoreSubmission counts a submission attempt by outcome.
func RecordScoreSubmission(category, outcome string) {
	globalManager.scoreSubmissions.WithLabelValues(category, outcome).Inc()
}

// RecordScoreRecorded counts a persisted score record.
func RecordScoreRecorded(category string) {
	globalManager.scoresRecorded.WithLabelValues(category).Inc()
}

// UpdateClaimsHeld sets the number of held submission claims.
func UpdateClaimsHeld(count int64) {
	globalManager.claimsHeld.Set(float64(count))
}

// UpdateActiveCandidates sets the active candidate count.
func UpdateActiveCandidates(count int) {
	globalManager.activeCandidates.Set(float64(count))
}

// Ranking and export

// RecordRanking counts a computed report and its latency.
func RecordRanking(filter, gender string, latencyMs float64) {
	globalManager.rankingComputations.WithLabelValues(filter, gender).Inc()
	globalManager.rankingLatency.Observe(latencyMs)
}

// RecordFilterFallback counts a request for an unknown filter.
func RecordFilterFallback() {
	globalManager.filterFallbacks.Inc()
}

// RecordExport counts a rendered export.
func RecordExport(format string) {
	globalManager.exports.WithLabelValues(format).Inc()
}

// RecordExportFailure counts a failed export.
func RecordExportFailure(format string) {
	globalManager.exportFailures.WithLabelValues(format).Inc()
}

// Repository

func UpdateRepositoryRecordsTotal(count int) {
	globalManager.repositoryRecordsTotal.Set(float64(count))
}

func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

func RecordRepositorySnapshotRebuildDuration(durationMs float64) {
	globalManager.repositorySnapshotRebuildDuration.Observe(durationMs)
}

func IncrementRepositorySnapshotCount() {
	globalManager.repositorySnapshotCount.Inc()
}

// Queue

func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Workers

func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// HTTP

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Errors

func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System

func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry the global manager writes to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
