package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedRoute = "unmatched"

// Metrics of the query server. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chronicle_api_requests_total", Help: "Total HTTP requests"},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chronicle_api_request_duration_seconds",
				Help:    "Request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}

	return m
}

// instrument records method, route pattern, status class and duration of every request.
func (m *Metrics) instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		// the mux stores the matched pattern on the request
		route := r.Pattern
		if route == "" {
			route = unmatchedRoute
		}

		m.requests.WithLabelValues(r.Method, route, statusLabel(ww.status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// responseWriter captures the status code for labeling.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}
