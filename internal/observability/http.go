package observability

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	routeHealth  = "/healthz"
	routeMetrics = "/metrics"
	routeOther   = "other"
)

var (
	opsRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportq_http_requests_total",
			Help: "Ops endpoint requests by route and status code.",
		},
		[]string{"method", "path", "status"},
	)
	opsRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reportq_http_request_duration_seconds",
			Help:    "Ops endpoint latency by route.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(opsRequestsTotal, opsRequestDurationSeconds)
}

// HealthFunc reports whether the process can still do its work. A nil
// HealthFunc always reports healthy.
type HealthFunc func(ctx context.Context) error

// NewOpsHandler serves GET /healthz and GET /metrics. Every request is counted
// and, when logger is set, logged at debug level.
func NewOpsHandler(logger *slog.Logger, health HealthFunc) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET "+routeHealth, healthHandler(health))
	mux.Handle("GET "+routeMetrics, promhttp.Handler())
	return instrument(logger, mux)
}

func healthHandler(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, body := http.StatusOK, map[string]string{"status": "ok"}
		if health != nil {
			if err := health(r.Context()); err != nil {
				code = http.StatusServiceUnavailable
				body = map[string]string{"status": "unavailable", "error": err.Error()}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// instrument records one counter sample, one latency sample and an optional
// debug log line per request. Unknown paths share the "other" label so that
// scanners cannot grow the series count.
func instrument(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &responseRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(started)

		route := routeLabel(r.URL.Path)
		code := strconv.Itoa(rec.code)
		opsRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		opsRequestDurationSeconds.WithLabelValues(r.Method, route, code).Observe(elapsed.Seconds())

		if logger != nil {
			logger.DebugContext(r.Context(), "ops_request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.code),
				slog.Int("bytes", rec.written),
				slog.Duration("elapsed", elapsed),
			)
		}
	})
}

func routeLabel(path string) string {
	switch path {
	case routeHealth, routeMetrics:
		return path
	default:
		return routeOther
	}
}

type responseRecorder struct {
	http.ResponseWriter
	code    int
	written int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.written += n
	return n, err
}
