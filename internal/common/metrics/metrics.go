// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_completed_total",
			Help: "Total number of jobs completed",
		},
		[]string{"queue", "kind"},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_failed_total",
			Help: "Total number of jobs that failed terminally",
		},
		[]string{"queue", "kind", "error_code"},
	)

	JobsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_retried_total",
			Help: "Total number of job attempts scheduled for retry",
		},
		[]string{"queue", "kind"},
	)

	JobsStalled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_stalled_total",
			Help: "Total number of stalled jobs reclaimed",
		},
		[]string{"queue", "kind"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_job_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"queue", "kind"},
	)

	JobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_jobs_active",
			Help: "Number of jobs currently executing",
		},
		[]string{"queue"},
	)

	RateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_ratelimit_wait_seconds",
			Help:    "Time spent waiting for a shared rate limiter slot",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"limiter"},
	)

	SalaryUnusable = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_salary_unusable_total",
			Help: "Pool jobs left out of a salary sample because their salary could not be normalized",
		},
		[]string{"reason"},
	)

	ArtifactTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_artifact_transitions_total",
			Help: "Generation artifact state transitions",
		},
		[]string{"kind", "status"},
	)
)
