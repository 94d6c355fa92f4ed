package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus collectors shared across the server. Registered once via Handler.
var (
	JobsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lazybird_jobs_submitted_total",
		Help: "Test jobs accepted into the queue.",
	})
	JobsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lazybird_jobs_rejected_total",
		Help: "Submissions rejected because the queue was full.",
	})
	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lazybird_jobs_processed_total",
		Help: "Jobs finished by the worker, by final status.",
	}, []string{"status"})
	JobsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lazybird_jobs_cancelled_total",
		Help: "Queued jobs cancelled before execution.",
	})
	CallbackFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lazybird_callback_failures_total",
		Help: "Completion callbacks that could not be delivered.",
	})
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lazybird_queue_depth",
		Help: "Jobs currently waiting in the queue.",
	})
	TestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lazybird_test_duration_seconds",
		Help:    "Wall-clock duration of completed test runs.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

var registerOnce sync.Once

// Handler exposes the metrics endpoint, registering collectors on first use.
func Handler() http.Handler {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			JobsSubmitted,
			JobsRejected,
			JobsProcessed,
			JobsCancelled,
			CallbackFailures,
			QueueDepth,
			TestDuration,
		)
	})
	return promhttp.Handler()
}
