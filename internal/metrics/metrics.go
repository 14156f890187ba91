// Package metrics exposes Prometheus collectors for the scan service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scanItemsTotal             *prometheus.CounterVec
	scanMatchesTotal           prometheus.Counter
	scanSessionsTotal          *prometheus.CounterVec
	scanNotificationsTotal     *prometheus.CounterVec
	scanDeadLetterTotal        prometheus.Counter
	scanActiveItemWorkers      prometheus.Gauge
	scanItemDurationSeconds    prometheus.Histogram
	sourceThrottleSeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scanItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_items_total",
				Help: "Total number of work items handled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scanMatchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scan_matches_total",
				Help: "Total number of documents that matched at least one target code.",
			},
		)

		scanSessionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_sessions_total",
				Help: "Total number of scan sessions, labeled by lifecycle event.",
			},
			[]string{"event"},
		)

		scanNotificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_notifications_total",
				Help: "Total push notifications, labeled by event type and delivery outcome.",
			},
			[]string{"event_type", "outcome"},
		)

		scanDeadLetterTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scan_dead_letter_total",
				Help: "Total queue payloads rejected at the consumer boundary.",
			},
		)

		scanActiveItemWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scan_active_item_workers",
				Help: "Number of item processors currently running.",
			},
		)

		scanItemDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scan_item_duration_seconds",
				Help:    "Histogram of per-item processing latencies.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		sourceThrottleSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scan_source_throttle_seconds",
				Help:    "Histogram of delays introduced by document source rate limiting.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveItem records one handled work item and its processing duration.
func ObserveItem(outcome string, duration time.Duration) {
	scanItemsTotal.WithLabelValues(outcome).Inc()
	scanItemDurationSeconds.Observe(duration.Seconds())
}

// ObserveMatch increments the matched documents counter.
func ObserveMatch() {
	scanMatchesTotal.Inc()
}

// ObserveSession increments the session counter for the given lifecycle event.
func ObserveSession(event string) {
	scanSessionsTotal.WithLabelValues(event).Inc()
}

// ObserveNotification records one push attempt and its delivery outcome.
func ObserveNotification(eventType, outcome string) {
	scanNotificationsTotal.WithLabelValues(eventType, outcome).Inc()
}

// ObserveDeadLetter increments the rejected payload counter.
func ObserveDeadLetter() {
	scanDeadLetterTotal.Inc()
}

// IncActiveItemWorkers increments the active item processors gauge.
func IncActiveItemWorkers() {
	scanActiveItemWorkers.Inc()
}

// DecActiveItemWorkers decrements the active item processors gauge.
func DecActiveItemWorkers() {
	scanActiveItemWorkers.Dec()
}

// ObserveSourceThrottle records a delay imposed by source API rate limiting.
func ObserveSourceThrottle(operation string, delay time.Duration) {
	sourceThrottleSeconds.WithLabelValues(operation).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
