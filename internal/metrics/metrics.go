package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "octowatch_api_requests_total",
			Help: "Total number of upstream API requests per operation",
		},
		[]string{"op"},
	)

	APIErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "octowatch_api_errors_total",
			Help: "Total number of failed upstream API requests per operation",
		},
		[]string{"op"},
	)

	RefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "octowatch_cache_refreshes_total",
			Help: "Total number of rate cache refresh attempts per entity",
		},
		[]string{"entity"},
	)

	EntityErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "octowatch_entity_errors_total",
			Help: "Total number of per-entity update failures",
		},
		[]string{"entity", "kind"},
	)

	TickDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "octowatch_tick_duration_seconds",
			Help:    "Duration of one full registry tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	ChargeOn = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "octowatch_charge_on",
			Help: "Whether the charging signal is currently on (1) or off (0)",
		},
		[]string{"entity"},
	)

	CurrentRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "octowatch_current_rate_pence",
			Help: "Current half-hour unit rate per tariff entity",
		},
		[]string{"entity"},
	)
)

// ObserveTick records the duration of one registry pass.
func ObserveTick(started time.Time) {
	TickDurationSeconds.Observe(time.Since(started).Seconds())
}
