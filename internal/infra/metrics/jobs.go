package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(jobsSubmittedTotal, jobsFinishedTotal, jobDurationSeconds, jobRetriesTotal, jobsRejectedTotal)
}

var (
	jobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latexy_jobs_submitted_total",
			Help: "Jobs accepted by submitters, by family and priority class.",
		},
		[]string{"family", "priority"},
	)

	jobsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latexy_jobs_rejected_total",
			Help: "Submissions refused before enqueue, by family and reason.",
		},
		[]string{"family", "reason"}, // validation, rate_limited, queue
	)

	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latexy_jobs_finished_total",
			Help: "Jobs reaching a terminal state, by family and status.",
		},
		[]string{"family", "status"}, // completed, failed, cancelled
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "latexy_job_duration_seconds",
			Help:    "Executor wall time per attempt.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"family"},
	)

	jobRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "latexy_job_retries_total",
			Help: "Failed attempts handed back to the queue for retry.",
		},
		[]string{"family"},
	)
)

func IncJobSubmitted(family, priority string) {
	jobsSubmittedTotal.WithLabelValues(norm(family), norm(priority)).Inc()
}

func IncJobRejected(family, reason string) {
	jobsRejectedTotal.WithLabelValues(norm(family), norm(reason)).Inc()
}

func IncJobFinished(family, status string) {
	jobsFinishedTotal.WithLabelValues(norm(family), norm(status)).Inc()
}

func ObserveJobDuration(family string, d time.Duration) {
	jobDurationSeconds.WithLabelValues(norm(family)).Observe(d.Seconds())
}

func IncJobRetry(family string) {
	jobRetriesTotal.WithLabelValues(norm(family)).Inc()
}
