package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

// Latency buckets in milliseconds.
var latencyBuckets = []float64{
	5, 10, 25,
	50, 100, 250,
	500, 1000, 2500,
	5000, 10000, 30000,
}

var (
	DecisionTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "modguard_decisions_total",
			Help: "Moderation decisions by action and reason",
		},
		[]string{"action", "reason"},
	)

	OracleFailureTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "modguard_oracle_failures_total",
			Help: "Oracle classifier failures by kind (transport, status, malformed)",
		},
		[]string{"kind"},
	)

	OracleLatency = promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modguard_oracle_latency_ms",
			Help:    "Oracle classifier call latency in milliseconds",
			Buckets: latencyBuckets,
		},
	)

	LedgerConflictTotal = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "modguard_ledger_conflicts_total",
			Help: "Optimistic concurrency conflicts on ledger writes",
		},
	)

	BanTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "modguard_bans_total",
			Help: "Bans applied by state",
		},
		[]string{"state"},
	)
)

// Handler exposes the moderation registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
