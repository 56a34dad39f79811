// Package metrics exposes Prometheus collectors for the profile crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	profileRecordsTotal        *prometheus.CounterVec
	profileRenderDuration      *prometheus.HistogramVec
	profileEmailsFoundTotal    *prometheus.CounterVec
	siteFetchFailuresTotal     prometheus.Counter
	sinkErrorsTotal            *prometheus.CounterVec
	tasksInFlight              prometheus.Gauge
	robotsFallbackTotal        prometheus.Counter
	profileTaskDurationSeconds prometheus.Histogram
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		profileRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profile_records_total",
				Help: "Total number of profile records emitted, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		profileRenderDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "profile_render_duration_seconds",
				Help:    "Histogram of profile render latencies, labeled by site and outcome.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
			},
			[]string{"site", "outcome"},
		)

		profileEmailsFoundTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profile_emails_found_total",
				Help: "Total number of distinct emails discovered, labeled by source.",
			},
			[]string{"source"},
		)

		siteFetchFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "profile_site_fetch_failures_total",
				Help: "Total number of linked-website fetches that failed and were recovered.",
			},
		)

		sinkErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profile_sink_errors_total",
				Help: "Total number of record emits rejected by a sink, labeled by sink.",
			},
			[]string{"sink"},
		)

		tasksInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "profile_tasks_in_flight",
				Help: "Number of crawl tasks currently rendering, extracting, or fetching site emails.",
			},
		)

		robotsFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "profile_robots_fallback_total",
				Help: "Total robots.txt lookups answered with allow-all after TLS handshake timeouts.",
			},
		)

		profileTaskDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "profile_task_duration_seconds",
				Help:    "Histogram of end-to-end crawl task durations.",
				Buckets: []float64{1, 2, 5, 10, 20, 40, 80},
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "profile_rate_limit_delay_seconds",
				Help:    "Histogram of time spent waiting on per-domain render budgets.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"site"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRecord increments the record counter for a profile outcome.
func ObserveRecord(profileURL string, status string) {
	Init()
	profileRecordsTotal.WithLabelValues(SanitizeSite(profileURL), status).Inc()
}

// ObserveRender records how long a render attempt took.
func ObserveRender(profileURL string, outcome string, duration time.Duration) {
	Init()
	profileRenderDuration.WithLabelValues(SanitizeSite(profileURL), outcome).Observe(duration.Seconds())
}

// ObserveEmails adds newly discovered distinct emails for a source (bio or site).
func ObserveEmails(source string, count int) {
	Init()
	if count > 0 {
		profileEmailsFoundTotal.WithLabelValues(source).Add(float64(count))
	}
}

// ObserveSiteFetchFailure increments the recovered site-fetch failure counter.
func ObserveSiteFetchFailure() {
	Init()
	siteFetchFailuresTotal.Inc()
}

// ObserveSinkError increments the sink error counter.
func ObserveSinkError(sink string) {
	Init()
	sinkErrorsTotal.WithLabelValues(sink).Inc()
}

// ObserveRobotsFallback increments the robots.txt allow-all fallback counter.
func ObserveRobotsFallback() {
	Init()
	robotsFallbackTotal.Inc()
}

// ObserveTask records the end-to-end duration of one crawl task.
func ObserveTask(duration time.Duration) {
	Init()
	profileTaskDurationSeconds.Observe(duration.Seconds())
}

// IncTasksInFlight increments the in-flight task gauge.
func IncTasksInFlight() {
	Init()
	tasksInFlight.Inc()
}

// DecTasksInFlight decrements the in-flight task gauge.
func DecTasksInFlight() {
	Init()
	tasksInFlight.Dec()
}

// ObserveRateLimitDelay records how long a render waited for its domain budget.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(site).Observe(duration.Seconds())
}
