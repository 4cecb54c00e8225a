// Package metrics provides Prometheus instrumentation for the economy engine.
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
	// TransactionsTotal counts ledger transactions appended, by type.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_transactions_total",
		Help: "Total ledger transactions recorded",
	}, []string{"type"})

	// InsufficientFundsTotal counts transfers rejected for lack of funds.
	InsufficientFundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "economy_insufficient_funds_total",
		Help: "Transfers rejected because the sender could not cover them",
	})

	// ReservationsTotal counts inventory reservations by outcome.
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_reservations_total",
		Help: "Inventory reservations by terminal outcome",
	}, []string{"outcome"})

	// UnmetDemandTotal counts reservation attempts that could not be filled.
	UnmetDemandTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "economy_unmet_demand_total",
		Help: "Reservation attempts rejected for insufficient stock",
	})

	// JobApplicationsTotal counts labor market applications submitted.
	JobApplicationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "economy_job_applications_total",
		Help: "Job applications submitted",
	})

	// OffersTotal counts hiring offers by terminal status.
	OffersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_offers_total",
		Help: "Hiring offers by terminal status",
	}, []string{"status"})

	// MatchingRounds observes how many rounds offer resolution took.
	MatchingRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "economy_matching_rounds",
		Help:    "Rounds needed per labor matching resolution",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "economy_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "economy_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
