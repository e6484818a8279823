package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		providerCallsLatencyMs,
		providerRetries,
		promptTokens,
	)
}

var (
	providerCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_calls_latency_ms",
			Help:    "Generation provider call latency distribution in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 20000, 40000, 80000},
		},
		[]string{"provider", "kind", "success"},
	)

	providerRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_retries_total",
			Help: "Transient provider failures that were retried.",
		},
		[]string{"provider"},
	)

	promptTokens = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompt_tokens",
			Help:    "Estimated prompt tokens per step template.",
			Buckets: []float64{50, 100, 200, 400, 800, 1600},
		},
		[]string{"template"},
	)
)

// ObserveProviderCall records one provider invocation.
func ObserveProviderCall(provider, kind string, latency time.Duration, success bool) {
	providerCallsLatencyMs.WithLabelValues(norm(provider), norm(kind), strconv.FormatBool(success)).
		Observe(float64(latency / time.Millisecond))
}

func IncProviderRetry(provider string) {
	providerRetries.WithLabelValues(norm(provider)).Inc()
}

func ObservePromptTokens(template string, n int) {
	promptTokens.WithLabelValues(norm(template)).Observe(float64(n))
}
