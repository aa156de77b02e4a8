package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for agent self-monitoring.
// It uses a custom registry to avoid polluting the global default; the
// publisher's cost gauges register on the same registry so a single
// exposition endpoint serves both.
type Metrics struct {
	Registry *prometheus.Registry

	// Scrape cycle metrics
	CycleDuration prometheus.Histogram
	PhaseDuration *prometheus.HistogramVec
	CyclesTotal   *prometheus.CounterVec

	// Pricing cache metrics
	PricingLookupsTotal  *prometheus.CounterVec
	PriceCacheEntries    prometheus.Gauge
	PricingFetchDuration prometheus.Histogram

	// Cluster/metrics API metrics
	ClusterAPIErrorsTotal *prometheus.CounterVec

	// Record metrics
	RecordsGathered *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all Prometheus metrics
// registered on a custom registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "costscope_agent_cycle_duration_seconds",
			Help:    "Duration of full scrape cycles in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "costscope_agent_phase_duration_seconds",
			Help:    "Duration of the pod and node gathering phases in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"phase"}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "costscope_agent_cycles_total",
			Help: "Total number of scrape cycles by outcome.",
		}, []string{"status"}),

		PricingLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "costscope_agent_pricing_lookups_total",
			Help: "Total number of pricing cache lookups by outcome.",
		}, []string{"outcome"}),
		PriceCacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "costscope_agent_price_cache_entries",
			Help: "Current number of entries in the pricing cache.",
		}),
		PricingFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "costscope_agent_pricing_fetch_duration_seconds",
			Help:    "Duration of upstream pricing service calls in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		ClusterAPIErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "costscope_agent_cluster_api_errors_total",
			Help: "Total number of cluster and metrics API errors by resource.",
		}, []string{"resource"}),

		RecordsGathered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "costscope_agent_records_gathered",
			Help: "Number of resource records gathered in the last cycle.",
		}, []string{"kind"}),
	}

	// Register all metrics with the custom registry.
	reg.MustRegister(
		m.CycleDuration,
		m.PhaseDuration,
		m.CyclesTotal,
		m.PricingLookupsTotal,
		m.PriceCacheEntries,
		m.PricingFetchDuration,
		m.ClusterAPIErrorsTotal,
		m.RecordsGathered,
	)

	return m
}
