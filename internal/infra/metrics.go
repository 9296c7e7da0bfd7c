package infra

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shotpack",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "route", "code"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shotpack",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	pipelineJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shotpack",
			Subsystem: "pipeline",
			Name:      "jobs_total",
			Help:      "Total pack generation jobs by terminal result.",
		},
		[]string{"result"},
	)
	pipelineJobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "shotpack",
			Subsystem: "pipeline",
			Name:      "job_duration_seconds",
			Help:      "Pack generation duration in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 180, 240, 300},
		},
	)
	generationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shotpack",
			Subsystem: "pipeline",
			Name:      "generation_attempts_total",
			Help:      "Per-variant generation attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		pipelineJobsTotal,
		pipelineJobDuration,
		generationAttemptsTotal,
	)
}

// ObserveHTTPRequest records one completed HTTP request.
func ObserveHTTPRequest(method, route string, code int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObservePipelineJob records a job reaching a terminal state.
func ObservePipelineJob(result string, elapsed time.Duration) {
	pipelineJobsTotal.WithLabelValues(result).Inc()
	pipelineJobDuration.Observe(elapsed.Seconds())
}

// CountGenerationAttempt records one provider edit attempt outcome
// (success, retry, failed).
func CountGenerationAttempt(outcome string) {
	generationAttemptsTotal.WithLabelValues(outcome).Inc()
}
