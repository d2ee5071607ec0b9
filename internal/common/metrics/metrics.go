package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Matching core
var (
	ScoreCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_score_cache_lookups_total",
			Help: "Score cache lookups by result (hit, miss, stale)",
		},
		[]string{"result"},
	)

	ScoresComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_scores_computed_total",
			Help: "Founder/advisor pairs scored, by outcome",
		},
		[]string{"outcome"},
	)

	ScoreDistribution = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matching_overall_score",
			Help:    "Distribution of overall compatibility scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	AssignmentsMaterialized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_assignments_total",
			Help: "Assignment materialization outcomes (created, reused, failed)",
		},
		[]string{"outcome"},
	)

	RecalculationJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "matching_recalculation_jobs",
			Help: "Recalculation jobs currently tracked, by status",
		},
		[]string{"status"},
	)

	ScoringBoundaryCalls = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "matching_scoring_boundary_duration_seconds",
			Help: "Duration of remote scoring boundary invocations",
		},
		[]string{"mode", "success"},
	)

	HTTPRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "matching_http_request_duration_seconds",
			Help: "Duration of HTTP API requests",
		},
		[]string{"method", "route", "status"},
	)
)
