package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "foodsearch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "foodsearch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "foodsearch",
		Name:      "provider_requests_total",
		Help:      "Total requests to nutrition providers by provider name and result status.",
	}, []string{"provider", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "foodsearch",
		Name:      "provider_request_duration_seconds",
		Help:      "Nutrition provider request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20},
	}, []string{"provider"})

	ProviderAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "foodsearch",
		Name:      "provider_available",
		Help:      "Whether a provider is available (1) or blocked by circuit breaker (0).",
	}, []string{"provider"})

	FilterRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "foodsearch",
		Name:      "filter_rejections_total",
		Help:      "Records dropped by the result filter pipeline, by rejecting rule.",
	}, []string{"rule"})

	DedupeDropsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "foodsearch",
		Name:      "dedupe_drops_total",
		Help:      "Records dropped as duplicates, by matching key kind (source or content).",
	}, []string{"key"})

	SearchSessionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "foodsearch",
		Name:      "search_sessions_total",
		Help:      "Total search sessions started.",
	})

	SearchUnavailableTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "foodsearch",
		Name:      "search_unavailable_total",
		Help:      "Sessions in which every provider failed.",
	})

	DebounceSettlesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "foodsearch",
		Name:      "debounce_settles_total",
		Help:      "Debounced query settles that launched a search.",
	})

	DebounceSuppressedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "foodsearch",
		Name:      "debounce_suppressed_total",
		Help:      "Debounce settles suppressed because the value matched the previous settle.",
	})

	HistorySelectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "foodsearch",
		Name:      "history_selections_total",
		Help:      "Food selections recorded into the history store.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderAvailable,
		FilterRejectionsTotal,
		DedupeDropsTotal,
		SearchSessionsTotal,
		SearchUnavailableTotal,
		DebounceSettlesTotal,
		DebounceSuppressedTotal,
		HistorySelectionsTotal,
	)
}
