package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsProcessedTotal, stepsTotal, qualityVerdictsTotal, lockLostTotal)
}

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_processed_total",
			Help: "Generation job runs by outcome and failure reason.",
		},
		[]string{"status", "reason"}, // status: completed|failed|busy
	)

	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_steps_total",
			Help: "Completed pipeline steps by quality status.",
		},
		[]string{"step", "quality"},
	)

	qualityVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_verdicts_total",
			Help: "Quality gate verdicts by outcome and hint.",
		},
		[]string{"verdict", "hint"},
	)

	lockLostTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_lock_lost_total",
			Help: "Workers that lost their job lease mid-run.",
		},
	)
)

func IncJob(status, reason string) {
	jobsProcessedTotal.WithLabelValues(norm(status), norm(reason)).Inc()
}

func IncStep(step, quality string) {
	stepsTotal.WithLabelValues(norm(step), norm(quality)).Inc()
}

func IncQualityVerdict(verdict, hint string) {
	qualityVerdictsTotal.WithLabelValues(norm(verdict), norm(hint)).Inc()
}

func IncLockLost() {
	lockLostTotal.Inc()
}
