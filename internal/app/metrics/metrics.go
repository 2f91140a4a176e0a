package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "feed_registry",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feed_registry",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feed_registry",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	updatesAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "feed_registry",
			Subsystem: "updates",
			Name:      "accepted_total",
			Help:      "Total number of committed feed updates.",
		},
	)

	updatesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feed_registry",
			Subsystem: "updates",
			Name:      "rejected_total",
			Help:      "Total number of rejected feed updates by reason.",
		},
		[]string{"reason"},
	)

	feedsRegistered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feed_registry",
			Subsystem: "feeds",
			Name:      "registered_total",
			Help:      "Total number of feed registrations.",
		},
		[]string{"mode"},
	)

	staleFeeds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "feed_registry",
			Subsystem: "feeds",
			Name:      "stale",
			Help:      "Number of feeds currently outside the staleness window.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		updatesAccepted,
		updatesRejected,
		feedsRegistered,
		staleFeeds,
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

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordUpdateAccepted counts one committed update.
func RecordUpdateAccepted() {
	updatesAccepted.Inc()
}

// RecordUpdateRejected counts one rejected update under its reason.
func RecordUpdateRejected(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	updatesRejected.WithLabelValues(reason).Inc()
}

// RecordFeedRegistered counts one registration; mode is explicit or auto.
func RecordFeedRegistered(mode string) {
	feedsRegistered.WithLabelValues(mode).Inc()
}

// SetStaleFeeds records the current number of stale feeds.
func SetStaleFeeds(count int) {
	staleFeeds.Set(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "feeds" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/feeds"
	}
	if len(parts) == 2 {
		return "/feeds/:feed"
	}
	return "/feeds/:feed/" + parts[2]
}
