package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bibleplan"

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)

	// Entitlement metrics
	consumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "consume_total",
			Help:      "Credit consumption decisions by action type and outcome",
		},
		[]string{"action", "outcome"},
	)

	consumeConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "consume_conflicts_total",
			Help:      "Conditional decrements that lost a race and were retried",
		},
	)

	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "store_errors_total",
			Help:      "Requests denied because the entitlement store was unavailable",
		},
		[]string{"operation"},
	)

	redemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "redemptions_total",
			Help:      "Promotional code redemptions by outcome",
		},
		[]string{"outcome"},
	)

	tierChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "tier_changes_total",
			Help:      "Tier transitions by target tier and source",
		},
		[]string{"tier", "source"},
	)

	// Billing metrics
	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Payment webhook events by type and status",
		},
		[]string{"type", "status"},
	)

	// Usage rollup metrics
	usageDailyEvents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "daily_events",
			Help:      "Credit decisions recorded on the most recently rolled up day",
		},
		[]string{"action", "outcome"},
	)

	usageRollupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "rollup_duration_seconds",
			Help:      "Duration of the daily usage rollup",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30},
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "table"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns a middleware that records Prometheus metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		// Route pattern keeps label cardinality bounded
		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}

		status := strconv.Itoa(wrapped.statusCode)
		httpRequestsTotal.WithLabelValues(r.Method, routePattern, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern, status).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordConsume records the outcome of a consume decision
func RecordConsume(action, outcome string) {
	consumeTotal.WithLabelValues(action, outcome).Inc()
}

// RecordConsumeConflict records a lost conditional decrement
func RecordConsumeConflict() {
	consumeConflicts.Inc()
}

// RecordStoreError records a request denied by a store failure
func RecordStoreError(operation string) {
	storeErrors.WithLabelValues(operation).Inc()
}

// RecordRedemption records a code redemption attempt
func RecordRedemption(outcome string) {
	redemptionsTotal.WithLabelValues(outcome).Inc()
}

// RecordTierChange records a persisted tier transition
func RecordTierChange(tier, source string) {
	tierChangesTotal.WithLabelValues(tier, source).Inc()
}

// RecordWebhookEvent records a processed payment webhook
func RecordWebhookEvent(eventType, status string) {
	webhookEventsTotal.WithLabelValues(eventType, status).Inc()
}

// SetUsageDaily publishes one rolled up usage count
func SetUsageDaily(action, outcome string, count float64) {
	usageDailyEvents.WithLabelValues(action, outcome).Set(count)
}

// RecordUsageRollup records how long a rollup took
func RecordUsageRollup(duration time.Duration) {
	usageRollupDuration.Observe(duration.Seconds())
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation, table string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}
