package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSnapshot summarises counters for the readiness endpoint.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	Transitions              uint64    `json:"transitions"`
	TransitionConflicts      uint64    `json:"transition_conflicts"`
	NotificationFailures     uint64    `json:"notification_failures"`
	PropagationFailures      uint64    `json:"propagation_failures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation for the workflow API.
type MetricsService struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestDuration     *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	cacheLatency        prometheus.Observer
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	submissions         *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	notifications       *prometheus.CounterVec
	deadlineExtensions  *prometheus.CounterVec
	propagationFailures prometheus.Counter

	requestCount         uint64
	requestDurationTotal uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
	transitionCount      uint64
	conflictCount        uint64
	notifyFailureCount   uint64
	propagationFailCount uint64
}

// NewMetricsService registers collectors on a dedicated registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "review_cache_latency_seconds",
		Help:    "Latency for reviewer queue cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "review_cache_hits_total",
		Help: "Reviewer queue cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "review_cache_misses_total",
		Help: "Reviewer queue cache misses",
	})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "extension_request_submissions_total",
		Help: "Extension request submissions by result",
	}, []string{"result"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "extension_request_transitions_total",
		Help: "Approval transitions by action and result",
	}, []string{"action", "result"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "extension_notifications_total",
		Help: "Student notifications by outcome and delivery result",
	}, []string{"outcome", "result"})

	deadlineExtensions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deadline_extensions_total",
		Help: "Activity dates raised by approvals",
	}, []string{"target_type", "field"})

	propagationFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deadline_propagation_failures_total",
		Help: "Approved requests whose activity dates could not be raised",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses, submissions,
		transitions, notifications, deadlineExtensions, propagationFailures, goroutines)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		cacheLatency:        cacheLatency,
		cacheHits:           cacheHits,
		cacheMisses:         cacheMisses,
		submissions:         submissions,
		transitions:         transitions,
		notifications:       notifications,
		deadlineExtensions:  deadlineExtensions,
		propagationFailures: propagationFailures,
	}
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a reviewer queue cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// RecordSubmission counts a submit attempt by result label.
func (m *MetricsService) RecordSubmission(result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
}

// RecordTransition counts an approval transition attempt.
func (m *MetricsService) RecordTransition(action, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, result).Inc()
	switch result {
	case resultOK:
		atomic.AddUint64(&m.transitionCount, 1)
	case resultConflict:
		atomic.AddUint64(&m.conflictCount, 1)
	}
}

// RecordNotification counts a delivery attempt.
func (m *MetricsService) RecordNotification(outcome string, delivered bool) {
	if m == nil {
		return
	}
	result := resultOK
	if !delivered {
		result = resultFailed
		atomic.AddUint64(&m.notifyFailureCount, 1)
	}
	m.notifications.WithLabelValues(outcome, result).Inc()
}

// RecordDeadlineExtension counts a raised activity date.
func (m *MetricsService) RecordDeadlineExtension(targetType, field string) {
	if m == nil {
		return
	}
	m.deadlineExtensions.WithLabelValues(targetType, field).Inc()
}

// RecordPropagationFailure counts an approval whose side effect failed.
func (m *MetricsService) RecordPropagationFailure() {
	if m == nil {
		return
	}
	m.propagationFailures.Inc()
	atomic.AddUint64(&m.propagationFailCount, 1)
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	snapshot := MetricsSnapshot{
		RequestsTotal:        requests,
		Transitions:          atomic.LoadUint64(&m.transitionCount),
		TransitionConflicts:  atomic.LoadUint64(&m.conflictCount),
		NotificationFailures: atomic.LoadUint64(&m.notifyFailureCount),
		PropagationFailures:  atomic.LoadUint64(&m.propagationFailCount),
		Goroutines:           runtime.NumGoroutine(),
		GeneratedAt:          time.Now().UTC(),
	}
	if requests > 0 {
		snapshot.AverageRequestDurationMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	if total := hits + misses; total > 0 {
		snapshot.CacheHitRatio = float64(hits) / float64(total)
	}
	return snapshot
}

const (
	resultOK        = "ok"
	resultFailed    = "failed"
	resultForbidden = "forbidden"
	resultConflict  = "conflict"
	resultInvalid   = "invalid"
	resultDuplicate = "duplicate"
)
