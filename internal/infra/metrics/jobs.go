package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		jobsCreatedTotal,
		jobTransitionsTotal,
		jobsClaimedTotal,
		jobCreateRefusals,
	)
}

var (
	jobsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_created_total",
			Help: "Jobs created, labeled by type.",
		},
		[]string{"type"},
	)

	jobTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_transitions_total",
			Help: "Job status transitions, labeled by target status.",
		},
		[]string{"status"},
	)

	jobsClaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_claimed_total",
			Help: "Jobs handed to workers by claimBatch.",
		},
	)

	jobCreateRefusals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_create_refusals_total",
			Help: "Create calls refused by a rate limit, labeled by which cap hit.",
		},
		[]string{"limit"}, // 'active', 'daily'
	)
)

func IncJobCreated(jobType string) {
	jobsCreatedTotal.WithLabelValues(norm(jobType)).Inc()
}

func IncJobTransition(status string) {
	jobTransitionsTotal.WithLabelValues(norm(status)).Inc()
}

func AddJobsClaimed(n int) {
	jobsClaimedTotal.Add(float64(n))
}

func IncJobCreateRefused(limit string) {
	jobCreateRefusals.WithLabelValues(norm(limit)).Inc()
}
