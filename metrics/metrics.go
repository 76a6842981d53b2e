// Package metrics exposes Prometheus collectors for the API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "club_recruitment"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	applicationsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applications_submitted_total",
			Help:      "Applications accepted from the public form.",
		},
	)

	applicationsReviewed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applications_reviewed_total",
			Help:      "Status decisions written by admins.",
		},
		[]string{"status"},
	)

	eventsRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discord",
			Name:      "events_total",
			Help:      "Application events handed to the Discord notifier.",
		},
		[]string{"action", "result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		applicationsSubmitted,
		applicationsReviewed,
		eventsRelayed,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := CanonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordSubmission counts one stored application.
func RecordSubmission() {
	applicationsSubmitted.Inc()
}

// RecordReview counts one status decision.
func RecordReview(status string) {
	applicationsReviewed.WithLabelValues(status).Inc()
}

// RecordRelay counts one event handed to the notifier.
func RecordRelay(action string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	eventsRelayed.WithLabelValues(action, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// apiPaths lists the API routes reported under their own label.
var apiPaths = map[string]bool{
	"/api/applications":                  true,
	"/api/auth/login":                    true,
	"/api/auth/logout":                   true,
	"/api/auth/password":                 true,
	"/api/me":                            true,
	"/api/admin/applications":            true,
	"/api/admin/applications/export":     true,
	"/api/admin/applications/:id/status": true,
	"/api/admin/applications/:id/notes":  true,
}

// CanonicalPath maps a request path onto a fixed label set so label
// cardinality stays bounded. Unknown API paths report as /api/other and
// everything served from the static site as /static.
func CanonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	switch trimmed {
	case "":
		return "/"
	case "healthz", "metrics":
		return "/" + trimmed
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "api" {
		return "/static"
	}
	for i, p := range parts {
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = ":id"
		}
	}
	if len(parts) == 5 && parts[1] == "admin" && parts[2] == "applications" {
		parts[3] = ":id"
	}
	path := "/" + strings.Join(parts, "/")
	if !apiPaths[path] {
		return "/api/other"
	}
	return path
}
