// Package metrics provides Prometheus metrics for the blindpair study service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager manages all Prometheus metrics for the study service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Voting
	votes              *prometheus.CounterVec
	votesFlagged       *prometheus.CounterVec
	votesDuplicate     prometheus.Counter
	votesRejected      *prometheus.CounterVec
	comparisonsCreated prometheus.Counter

	// Matchmaking
	matchmakingLatency  *prometheus.HistogramVec
	selections          *prometheus.CounterVec
	streakRelaxations   *prometheus.CounterVec
	categoriesExhausted prometheus.Counter

	// Sessions
	sessionsStarted   prometheus.Counter
	sessionsCompleted prometheus.Counter
	categoryStatus    *prometheus.GaugeVec

	// Background analysis
	analysisJobs    *prometheus.CounterVec
	analysisLatency prometheus.Histogram

	// Queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec
	workerActiveCount  prometheus.Gauge

	// Repository
	repositoryLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors and runtime
	errorsByComponent    *prometheus.CounterVec
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "blindpair",
		subsystem:        "study",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.votes = m.counterVec("votes_total", "Votes accepted, by comparison mode", "mode")
	m.votesFlagged = m.counterVec("votes_flagged_total", "Votes stored but excluded from ratings, by flag reason", "reason")
	m.votesDuplicate = m.counter("votes_duplicate_total", "Vote submissions ignored because the vote id was already seen")
	m.votesRejected = m.counterVec("votes_rejected_total", "Vote submissions rejected before any write, by reason", "reason")
	m.comparisonsCreated = m.counter("comparisons_created_total", "Pairwise comparisons written to the store")

	m.matchmakingLatency = m.histogramVec("matchmaking_latency_milliseconds", "Time spent selecting the next pair or quad", "mode")
	m.selections = m.counterVec("selections_total", "Selections served, by mode and phase", "mode", "phase")
	m.streakRelaxations = m.counterVec("streak_relaxations_total", "Selections that had to relax the streak limit or sampled window", "phase")
	m.categoriesExhausted = m.counter("categories_exhausted_total", "Selections that found every pair in a category already compared")

	m.sessionsStarted = m.counter("sessions_started_total", "Sessions created")
	m.sessionsCompleted = m.counter("sessions_completed_total", "Sessions marked complete")
	m.categoryStatus = m.gaugeVec("category_publishable", "1 when the category last evaluated as publishable or better", "category")

	m.analysisJobs = m.counterVec("analysis_jobs_total", "Background transitivity jobs, by outcome", "status")
	m.analysisLatency = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "analysis_latency_milliseconds",
		Help: "Duration of background transitivity jobs", ConstLabels: m.constLabels,
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	})

	m.queueSize = m.gauge("queue_size", "Analysis jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum analysis queue capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Analysis jobs accepted by the queue")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Analysis jobs refused by the queue", "reason")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of analysis workers")

	m.repositoryLatency = m.histogramVec("repository_latency_milliseconds", "Store operation latency", "op")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "type")
	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordVote increments the accepted vote counter.
func RecordVote(mode string) {
	globalManager.votes.WithLabelValues(mode).Inc()
}

// RecordVoteFlagged increments the flagged vote counter.
func RecordVoteFlagged(reason string) {
	globalManager.votesFlagged.WithLabelValues(reason).Inc()
}

// RecordVoteDuplicate increments the duplicate vote counter.
func RecordVoteDuplicate() {
	globalManager.votesDuplicate.Inc()
}

// RecordVoteRejected increments the rejected vote counter.
func RecordVoteRejected(reason string) {
	globalManager.votesRejected.WithLabelValues(reason).Inc()
}

// RecordComparisonsCreated adds n written comparisons.
func RecordComparisonsCreated(n int) {
	globalManager.comparisonsCreated.Add(float64(n))
}

// RecordMatchmakingLatency records selection latency in milliseconds.
func RecordMatchmakingLatency(mode string, latencyMs float64) {
	globalManager.matchmakingLatency.WithLabelValues(mode).Observe(latencyMs)
}

// RecordSelection counts a served selection.
func RecordSelection(mode, phase string) {
	globalManager.selections.WithLabelValues(mode, phase).Inc()
}

// RecordStreakRelaxation counts a selection that fell back past its
// preferred candidate set.
func RecordStreakRelaxation(phase string) {
	globalManager.streakRelaxations.WithLabelValues(phase).Inc()
}

// RecordCategoryExhausted counts a selection that found no pair left.
func RecordCategoryExhausted() {
	globalManager.categoriesExhausted.Inc()
}

// RecordSessionStarted increments the session counter.
func RecordSessionStarted() {
	globalManager.sessionsStarted.Inc()
}

// RecordSessionCompleted increments the completed session counter.
func RecordSessionCompleted() {
	globalManager.sessionsCompleted.Inc()
}

// UpdateCategoryPublishable records the latest threshold verdict.
func UpdateCategoryPublishable(categoryID string, publishable bool) {
	v := 0.0
	if publishable {
		v = 1
	}
	globalManager.categoryStatus.WithLabelValues(categoryID).Set(v)
}

// RecordAnalysisJob counts a finished analysis job by outcome.
func RecordAnalysisJob(status string) {
	globalManager.analysisJobs.WithLabelValues(status).Inc()
}

// RecordAnalysisLatency records analysis duration in milliseconds.
func RecordAnalysisLatency(latencyMs float64) {
	globalManager.analysisLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueEnqueueError counts a refused enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordRepositoryLatency records a store operation latency.
func RecordRepositoryLatency(op string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap memory in use in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler serves the custom registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}
