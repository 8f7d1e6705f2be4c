package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "secureeval"

var (
	registerOnce sync.Once

	signalsTotal        *prometheus.CounterVec
	terminationsTotal   *prometheus.CounterVec
	submissionsTotal    *prometheus.CounterVec
	gradingDuration     prometheus.Histogram
	gradingFallbacks    prometheus.Counter
	reportsTotal        *prometheus.CounterVec
	classifierFailures  prometheus.Counter
	httpRequestsTotal   *prometheus.CounterVec
	httpLatencySeconds  *prometheus.HistogramVec
	workerJobsProcessed *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors of the integrity engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		signalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Violation signals considered, by kind and whether they changed the session.",
		}, []string{"kind", "result"})

		terminationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminations_total",
			Help:      "Sessions terminated, by cause.",
		}, []string{"cause"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submit calls, by outcome.",
		}, []string{"outcome"})

		gradingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grading_duration_seconds",
			Help:      "Time spent evaluating one submission.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		})

		gradingFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grading_fallbacks_total",
			Help:      "Free-text questions scored zero because AI grading failed.",
		})

		reportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Integrity reports generated, by result.",
		}, []string{"result"})

		classifierFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_failures_total",
			Help:      "Frames the face classifier could not process.",
		})

		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_latency_seconds",
			Help:      "Latency distribution of HTTP requests.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"method", "route"})

		workerJobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_jobs_total",
			Help:      "Background jobs handled, by queue and result.",
		}, []string{"queue", "result"})

		prometheus.MustRegister(
			signalsTotal, terminationsTotal, submissionsTotal, gradingDuration, gradingFallbacks,
			reportsTotal, classifierFailures, httpRequestsTotal, httpLatencySeconds, workerJobsProcessed,
		)
	})
}

// Signals counts considered signals.
func Signals() *prometheus.CounterVec {
	RegisterMetrics()
	return signalsTotal
}

// Terminations counts terminated sessions.
func Terminations() *prometheus.CounterVec {
	RegisterMetrics()
	return terminationsTotal
}

// Submissions counts submit calls.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// GradingDuration observes evaluation latency.
func GradingDuration() prometheus.Histogram {
	RegisterMetrics()
	return gradingDuration
}

// GradingFallbacks counts free-text questions that fell back to zero.
func GradingFallbacks() prometheus.Counter {
	RegisterMetrics()
	return gradingFallbacks
}

// Reports counts generated integrity reports.
func Reports() *prometheus.CounterVec {
	RegisterMetrics()
	return reportsTotal
}

// ClassifierFailures counts failed frame classifications.
func ClassifierFailures() prometheus.Counter {
	RegisterMetrics()
	return classifierFailures
}

// HTTPRequests counts served HTTP requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency observes HTTP request latency.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// WorkerJobs counts background jobs.
func WorkerJobs() *prometheus.CounterVec {
	RegisterMetrics()
	return workerJobsProcessed
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
