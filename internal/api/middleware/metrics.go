// metrics.go — Prometheus HTTP метрики AirBIM.
// Регистрирует метрики: bim_http_requests_total, bim_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bim_http_requests_total",
			Help: "Общее количество HTTP-запросов к AirBIM",
		},
		[]string{"method", "path", "status"},
	)

	// Upload ждёт конвертации PDAL, поэтому бакеты шире DefBuckets
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bim_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к AirBIM в секундах",
			Buckets: []float64{.005, .025, .1, .5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath сводит пути к ограниченному набору лейблов.
// /api/bim/files/a1b2c3d4-... → /api/bim/files/{file_id}
// Неизвестные пути (сканеры, опечатки) объединяются в "other".
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/bim/upload", "/api/bim/files", "/api/bim/openapi.json",
		"/bim", "/bim/", "/bim/test":
		return path
	}

	const filesPrefix = "/api/bim/files/"
	if rest, ok := strings.CutPrefix(path, filesPrefix); ok && rest != "" && !strings.Contains(rest, "/") {
		return filesPrefix + "{file_id}"
	}

	return "other"
}
