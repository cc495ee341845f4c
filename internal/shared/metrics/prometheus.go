package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	refillTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refill_status_transitions_total",
			Help: "Total number of refill request status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	fillsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fills_completed_total",
			Help: "Total number of completed medicine fills",
		},
	)

	fillsRejectedStock = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fills_rejected_insufficient_stock_total",
			Help: "Total number of fills rejected for insufficient stock",
		},
	)

	trackingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_events_total",
			Help: "Total number of tracking events appended",
		},
		[]string{"status"},
	)

	liveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracking_live_subscribers",
			Help: "Number of connected live tracking subscribers",
		},
	)

	remindersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Total number of refill reminders sent",
		},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of outbound notifications by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	lowStockItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_low_stock_items",
			Help: "Number of inventory rows at or below their low stock threshold",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath caps path cardinality for metrics labels
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordRefillTransition records a refill request status change
func RecordRefillTransition(fromStatus, toStatus string) {
	refillTransitions.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordFillCompleted records a completed fill
func RecordFillCompleted() {
	fillsCompleted.Inc()
}

// RecordFillRejectedStock records a fill rejected for insufficient stock
func RecordFillRejectedStock() {
	fillsRejectedStock.Inc()
}

// RecordTrackingEvent records a tracking ledger append
func RecordTrackingEvent(status string) {
	trackingEvents.WithLabelValues(status).Inc()
}

// RecordSubscriberConnected tracks a live feed connection
func RecordSubscriberConnected() {
	liveSubscribers.Inc()
}

// RecordSubscriberDisconnected tracks a live feed disconnect
func RecordSubscriberDisconnected() {
	liveSubscribers.Dec()
}

// RecordReminderSent records a sent refill reminder
func RecordReminderSent() {
	remindersSent.Inc()
}

// RecordNotification records an outbound notification outcome
func RecordNotification(kind string, delivered bool) {
	outcome := "failed"
	if delivered {
		outcome = "delivered"
	}
	notificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordLowStockItems records the current low stock row count
func RecordLowStockItems(count int) {
	lowStockItems.Set(float64(count))
}
