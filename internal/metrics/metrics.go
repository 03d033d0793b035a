package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pool metrics
	PoolCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fee_relayer_pool_count",
		Help: "Number of pools in the current snapshot",
	})

	RoutablePoolCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fee_relayer_routable_pool_count",
		Help: "Number of pools in the current snapshot that can take part in a route",
	})

	PoolSnapshots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fee_relayer_pool_snapshots_total",
			Help: "Pool snapshots loaded, by source",
		},
		[]string{"source"},
	)

	// Router metrics
	RouteSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fee_relayer_route_searches_total",
			Help: "Route searches, by outcome",
		},
		[]string{"outcome"},
	)

	RoutePricingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fee_relayer_route_pricing_failures_total",
		Help: "Candidate routes that could not be priced",
	})

	// Fee context metrics
	ContextRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fee_relayer_context_refreshes_total",
			Help: "Fee context fetches, by status",
		},
		[]string{"status"},
	)

	ContextRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fee_relayer_context_refresh_duration_seconds",
		Help:    "Fee context fetch duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	// Relay metrics
	PreparedActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fee_relayer_prepared_actions_total",
			Help: "Relayed actions prepared, by path",
		},
		[]string{"path"},
	)

	PrepareFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fee_relayer_prepare_failures_total",
			Help: "Relayed actions that failed to prepare, by reason",
		},
		[]string{"reason"},
	)

	TopUpLamports = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fee_relayer_top_up_lamports",
		Help:    "Native amount targeted by top-up transactions",
		Buckets: prometheus.ExponentialBuckets(5000, 4, 10),
	})
)
