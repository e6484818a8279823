package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal, killSwitchEnabled) }

var (
	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Tracks cache hits and misses for various caches.",
		},
		[]string{"cache", "result"}, // e.g., cache="kill_switch", result="hit"
	)

	killSwitchEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "generation_enabled",
			Help: "1 when paid generation is allowed, 0 when the kill switch denies it.",
		},
	)
)

func IncCacheRequest(cacheName, result string) {
	cacheRequestsTotal.WithLabelValues(norm(cacheName), norm(result)).Inc()
}

func SetGenerationEnabled(enabled bool) {
	if enabled {
		killSwitchEnabled.Set(1)
		return
	}
	killSwitchEnabled.Set(0)
}
