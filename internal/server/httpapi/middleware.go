package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmitrijs2005/dropserve/internal/logging"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropserve_http_requests_total",
			Help: "Total number of HTTP requests served.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dropserve_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath collapses token-bearing paths into route patterns so metric
// label cardinality stays bounded.
func normalizePath(path string) string {
	switch path {
	case "/", "/upload", "/metrics", "/health/live", "/health/ready":
		return path
	}
	if strings.HasPrefix(path, "/delete/") {
		return "/delete/{token}"
	}
	if strings.HasPrefix(path, "/set-password/") {
		return "/set-password/{token}"
	}
	return "/{request}"
}

// metricsMiddleware records request counts and latencies per normalized path.
func metricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			rw := newStatusRecorder(w)
			next.ServeHTTP(rw, r)

			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// requestLogger logs one line per request with a generated request id.
func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	logger = logger.With("module", "http_access")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.NewString()

			rw := newStatusRecorder(w)
			next.ServeHTTP(rw, r)

			logger.Info(r.Context(), "request handled",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"duration", time.Since(start).String(),
			)
		})
	}
}
