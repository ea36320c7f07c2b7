package observability

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LedgerOps counts ledger operations by name and outcome (ok, or the API error code).
	LedgerOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardvault_ledger_operations_total",
		Help: "Ledger operations by outcome",
	}, []string{"op", "outcome"})

	// TxRetries counts transaction attempts that were retried after a conflict.
	TxRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardvault_tx_retries_total",
		Help: "Transaction attempts retried after a conflict",
	}, []string{"op"})

	// TxConflicts counts operations that exhausted their retry budget.
	TxConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardvault_tx_conflicts_total",
		Help: "Operations that exhausted retries on conflict",
	}, []string{"op"})

	// CacheRequests counts read-through cache lookups by result (hit, miss, error).
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardvault_cache_requests_total",
		Help: "Read-through cache lookups",
	}, []string{"result"})

	// EventsPublished counts published events by sink and type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardvault_events_published_total",
		Help: "Events handed to a sink",
	}, []string{"sink", "type"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardvault_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// RapValue tracks the latest RAP per item.
	RapValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cardvault_rap",
		Help: "Latest rolling average price per item",
	}, []string{"item_type", "item_name"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardvault_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cardvault_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "route"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
