// Package metrics provides Prometheus metrics for the FacePulse service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every FacePulse collector.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Analysis pipeline
	detections     *prometheus.CounterVec
	ticksDropped   prometheus.Counter
	deriveLatency  prometheus.Histogram
	blinks         prometheus.Counter
	gateDecisions  *prometheus.CounterVec
	captures       *prometheus.CounterVec
	absences       prometheus.Counter
	activeSessions prometheus.Gauge

	// Mini-games
	activeFlows     *prometheus.GaugeVec
	flowTransitions *prometheus.CounterVec

	// Persistence
	uploads         *prometheus.CounterVec
	uploadBytes     prometheus.Histogram
	datastoreErrors *prometheus.CounterVec

	// Scores and ranking
	scoresSubmitted    prometheus.Counter
	scoresDuplicate    prometheus.Counter
	leaderboardUpdates prometheus.Counter
	rankedPlayers      prometheus.Gauge
	rankingLatency     *prometheus.HistogramVec

	// Queue and workers
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    *prometheus.CounterVec
	workerCount      prometheus.Gauge
	jobsProcessed    *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	jobLatency       *prometheus.HistogramVec

	// Quotes and collages
	quoteCache     *prometheus.CounterVec
	quoteLatency   prometheus.Histogram
	quoteErrors    prometheus.Counter
	collageLatency prometheus.Histogram
	collageImages  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var (
	mu             sync.RWMutex
	globalManager  *Manager                   //nolint:gochecknoglobals // singleton metrics manager
	customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry served on /healthz
)

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "facepulse",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
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

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.detections = m.counterVec("detections_total", "Detections processed by result (face, no_face, error)", "result")
	m.ticksDropped = m.counter("poll_ticks_dropped_total", "Poll ticks skipped because the previous analysis was still running")
	m.deriveLatency = m.histogram("derive_latency_milliseconds", "Time spent deriving metrics from one detection")
	m.blinks = m.counter("blinks_total", "Blinks counted across all sessions")
	m.gateDecisions = m.counterVec("gate_decisions_total", "Capture gate decisions by reason", "reason")
	m.captures = m.counterVec("captures_total", "Captured moments by outcome (saved, local)", "outcome")
	m.absences = m.counter("absence_events_total", "Prolonged face-absence events")
	m.activeSessions = m.gauge("active_sessions", "Sessions with a live tracker")

	m.activeFlows = m.gaugeVec("active_flows", "Mini-game flows currently held in memory", "kind")
	m.flowTransitions = m.counterVec("flow_transitions_total", "Mini-game state transitions", "kind", "state")

	m.uploads = m.counterVec("uploads_total", "Blob uploads by result", "result")
	m.uploadBytes = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "upload_bytes", Help: "Size of uploaded blobs",
		ConstLabels: m.constLabels, Buckets: prometheus.ExponentialBuckets(4096, 4, 8),
	})
	m.datastoreErrors = m.counterVec("datastore_errors_total", "Datastore failures by operation and kind", "op", "kind")

	m.scoresSubmitted = m.counter("scores_submitted_total", "Score submissions accepted")
	m.scoresDuplicate = m.counter("scores_duplicate_total", "Score submissions rejected as duplicates")
	m.leaderboardUpdates = m.counter("leaderboard_updates_total", "Ranking updates that improved a player's best")
	m.rankedPlayers = m.gauge("ranked_players", "Players tracked by the ranking store")
	m.rankingLatency = m.histogramVec("ranking_latency_milliseconds", "Ranking store latency by operation", "op")

	m.queueSize = m.gauge("queue_size", "Jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Jobs dequeued")
	m.queueRejected = m.counterVec("queue_rejected_total", "Jobs rejected by reason", "reason")
	m.workerCount = m.gauge("worker_count", "Configured job workers")
	m.jobsProcessed = m.counterVec("jobs_processed_total", "Jobs processed by kind", "kind")
	m.jobErrors = m.counterVec("job_errors_total", "Jobs that failed by kind", "kind")
	m.jobLatency = m.histogramVec("job_latency_milliseconds", "Job processing latency by kind", "kind")

	m.quoteCache = m.counterVec("quote_cache_total", "Quote cache lookups by result (hit, miss)", "result")
	m.quoteLatency = m.histogram("quote_latency_milliseconds", "Quote generation latency on cache miss")
	m.quoteErrors = m.counter("quote_errors_total", "Quote generation failures")
	m.collageLatency = m.histogram("collage_render_milliseconds", "Collage render duration")
	m.collageImages = m.counterVec("collage_images_total", "Collage tiles by result (drawn, failed)", "result")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause")
}

// Use swaps the global manager, mainly for tests with a private registry.
func Use(m *Manager) error {
	if m == nil {
		return ErrNotInitialized
	}
	mu.Lock()
	globalManager = m
	mu.Unlock()
	return nil
}

// get returns the active manager, or nil when observations are disabled.
func get() *Manager {
	mu.RLock()
	m := globalManager
	mu.RUnlock()
	if m == nil || !m.enabled {
		return nil
	}
	return m
}

// GetRegistry returns the registry served on /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Analysis pipeline.

func RecordDetection(result string) {
	if m := get(); m != nil {
		m.detections.WithLabelValues(result).Inc()
	}
}

func RecordTickDropped() {
	if m := get(); m != nil {
		m.ticksDropped.Inc()
	}
}

func RecordDeriveLatency(ms float64) {
	if m := get(); m != nil {
		m.deriveLatency.Observe(ms)
	}
}

func RecordBlink() {
	if m := get(); m != nil {
		m.blinks.Inc()
	}
}

func RecordGateDecision(reason string) {
	if m := get(); m != nil {
		m.gateDecisions.WithLabelValues(reason).Inc()
	}
}

func RecordCapture(outcome string) {
	if m := get(); m != nil {
		m.captures.WithLabelValues(outcome).Inc()
	}
}

func RecordAbsence() {
	if m := get(); m != nil {
		m.absences.Inc()
	}
}

func UpdateActiveSessions(n int) {
	if m := get(); m != nil {
		m.activeSessions.Set(float64(n))
	}
}

// Mini-games.

func UpdateActiveFlows(kind string, n int) {
	if m := get(); m != nil {
		m.activeFlows.WithLabelValues(kind).Set(float64(n))
	}
}

func RecordFlowTransition(kind, state string) {
	if m := get(); m != nil {
		m.flowTransitions.WithLabelValues(kind, state).Inc()
	}
}

// Persistence.

func RecordUpload(result string, size int) {
	if m := get(); m != nil {
		m.uploads.WithLabelValues(result).Inc()
		if size > 0 {
			m.uploadBytes.Observe(float64(size))
		}
	}
}

func RecordDatastoreError(op, kind string) {
	if m := get(); m != nil {
		m.datastoreErrors.WithLabelValues(op, kind).Inc()
	}
}

// Scores and ranking.

func RecordScoreSubmitted() {
	if m := get(); m != nil {
		m.scoresSubmitted.Inc()
	}
}

func RecordScoreDuplicate() {
	if m := get(); m != nil {
		m.scoresDuplicate.Inc()
	}
}

func RecordLeaderboardUpdate() {
	if m := get(); m != nil {
		m.leaderboardUpdates.Inc()
	}
}

func UpdateRankedPlayers(n int) {
	if m := get(); m != nil {
		m.rankedPlayers.Set(float64(n))
	}
}

func RecordRankingLatency(op string, ms float64) {
	if m := get(); m != nil {
		m.rankingLatency.WithLabelValues(op).Observe(ms)
	}
}

// Queue and workers.

func UpdateQueueSize(size int) {
	if m := get(); m != nil {
		m.queueSize.Set(float64(size))
	}
}

func UpdateQueueCapacity(capacity int) {
	if m := get(); m != nil {
		m.queueCapacity.Set(float64(capacity))
	}
}

func UpdateQueueUtilization(ratio float64) {
	if m := get(); m != nil {
		m.queueUtilization.Set(ratio)
	}
}

func RecordQueueEnqueue() {
	if m := get(); m != nil {
		m.queueEnqueued.Inc()
	}
}

func RecordQueueDequeue() {
	if m := get(); m != nil {
		m.queueDequeued.Inc()
	}
}

func RecordQueueRejected(reason string) {
	if m := get(); m != nil {
		m.queueRejected.WithLabelValues(reason).Inc()
	}
}

func UpdateWorkerCount(n int) {
	if m := get(); m != nil {
		m.workerCount.Set(float64(n))
	}
}

func RecordJobProcessed(kind string, ms float64) {
	if m := get(); m != nil {
		m.jobsProcessed.WithLabelValues(kind).Inc()
		m.jobLatency.WithLabelValues(kind).Observe(ms)
	}
}

func RecordJobError(kind string) {
	if m := get(); m != nil {
		m.jobErrors.WithLabelValues(kind).Inc()
	}
}

// Quotes and collages.

func RecordQuoteCache(hit bool) {
	if m := get(); m != nil {
		result := "miss"
		if hit {
			result = "hit"
		}
		m.quoteCache.WithLabelValues(result).Inc()
	}
}

func RecordQuoteLatency(ms float64) {
	if m := get(); m != nil {
		m.quoteLatency.Observe(ms)
	}
}

func RecordQuoteError() {
	if m := get(); m != nil {
		m.quoteErrors.Inc()
	}
}

func RecordCollageRender(ms float64, drawn, failed int) {
	if m := get(); m != nil {
		m.collageLatency.Observe(ms)
		m.collageImages.WithLabelValues("drawn").Add(float64(drawn))
		m.collageImages.WithLabelValues("failed").Add(float64(failed))
	}
}

// HTTP.

func RecordHTTPRequest(endpoint, method, statusCode string) {
	if m := get(); m != nil {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	if m := get(); m != nil {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
	}
}

// Errors.

func RecordErrorByComponent(component, errorType string) {
	if m := get(); m != nil {
		m.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if m := get(); m != nil {
		m.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// System.

func UpdateSystemMemoryUsage(bytes uint64) {
	if m := get(); m != nil {
		m.systemMemoryUsage.Set(float64(bytes))
	}
}

func UpdateSystemGoroutineCount(n int) {
	if m := get(); m != nil {
		m.systemGoroutineCount.Set(float64(n))
	}
}

func RecordSystemGCPauseTime(ms float64) {
	if m := get(); m != nil {
		m.systemGCPauseTime.Observe(ms)
	}
}
