package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(httpRequestsTotal, httpRequestDuration, eventSubscribers, eventsDroppedTotal, workerQueueDepth, recoveredJobsTotal)
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	eventSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "progress_event_subscribers",
			Help: "Open progress event streams.",
		},
	)

	eventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progress_events_dropped_total",
			Help: "Progress events dropped because a subscriber was too slow.",
		},
	)

	workerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "generation_queue_depth",
			Help: "Async generation submissions waiting for a worker.",
		},
	)

	recoveredJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_recovered_jobs_total",
			Help: "Jobs resubmitted by the recovery worker, by result.",
		},
		[]string{"result"},
	)
)

func ObserveHTTP(route string, code string, d time.Duration) {
	httpRequestsTotal.WithLabelValues(route, code).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func AddEventSubscribers(delta float64) { eventSubscribers.Add(delta) }

func IncEventDropped() { eventsDroppedTotal.Inc() }

func SetQueueDepth(n int) { workerQueueDepth.Set(float64(n)) }

func IncRecovered(result string) { recoveredJobsTotal.WithLabelValues(norm(result)).Inc() }
