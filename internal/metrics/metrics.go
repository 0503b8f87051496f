// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_submissions_total",
			Help: "Total number of ingested mission submissions",
		},
		[]string{"cohort"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_cache_lookups_total",
			Help: "Memoized progress view lookups by view and outcome",
		},
		[]string{"view", "outcome"},
	)

	RecomputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "progress_recompute_duration_seconds",
			Help:    "Time spent recomputing a progress view on cache miss",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"view"},
	)

	WeeklyRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cohort_week_submission_rate",
			Help: "Last computed submission rate of a cohort week, in percent",
		},
		[]string{"cohort", "week"},
	)

	RemindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_reminders_sent_total",
			Help: "Reminder messages sent to cohort chats",
		},
		[]string{"cohort", "outcome"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
