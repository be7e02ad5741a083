// Package metrics exposes asset cache statistics to Prometheus.
//
// The collector reads a fresh stats snapshot on every scrape, so the
// manager needs no metrics hooks of its own:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewCollector(m))
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/orion-ecs/asset"
)

// Collector implements prometheus.Collector over a manager's cache
// statistics.
type Collector struct {
	m *asset.Manager

	loadedAssets  *prometheus.Desc
	pendingAssets *prometheus.Desc
	failedLoads   *prometheus.Desc
	cacheBytes    *prometheus.Desc
	cacheMaxBytes *prometheus.Desc
	utilization   *prometheus.Desc
	hitRatio      *prometheus.Desc
	hits          *prometheus.Desc
	misses        *prometheus.Desc
	evictions     *prometheus.Desc
}

// NewCollector creates a collector for m.
func NewCollector(m *asset.Manager) *Collector {
	return &Collector{
		m: m,
		loadedAssets: prometheus.NewDesc(
			"asset_cache_loaded_assets",
			"Number of cache entries holding a decoded value",
			nil, nil,
		),
		pendingAssets: prometheus.NewDesc(
			"asset_cache_pending_assets",
			"Number of cache entries with a load in flight",
			nil, nil,
		),
		failedLoads: prometheus.NewDesc(
			"asset_cache_load_failures_total",
			"Total number of failed loader invocations",
			nil, nil,
		),
		cacheBytes: prometheus.NewDesc(
			"asset_cache_bytes",
			"Estimated total size of all loaded entries in bytes",
			nil, nil,
		),
		cacheMaxBytes: prometheus.NewDesc(
			"asset_cache_max_bytes",
			"Configured cache size budget in bytes (0 = unbounded)",
			nil, nil,
		),
		utilization: prometheus.NewDesc(
			"asset_cache_utilization_ratio",
			"Cache size relative to its budget (0.0 to 1.0)",
			nil, nil,
		),
		hitRatio: prometheus.NewDesc(
			"asset_cache_hit_ratio",
			"Cache hit ratio (0.0 to 1.0)",
			nil, nil,
		),
		hits: prometheus.NewDesc(
			"asset_cache_hits_total",
			"Total number of load requests resolved from cache",
			nil, nil,
		),
		misses: prometheus.NewDesc(
			"asset_cache_misses_total",
			"Total number of load requests that invoked a loader",
			nil, nil,
		),
		evictions: prometheus.NewDesc(
			"asset_cache_evictions_total",
			"Total number of entries evicted by cache trimming",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.loadedAssets
	ch <- c.pendingAssets
	ch <- c.failedLoads
	ch <- c.cacheBytes
	ch <- c.cacheMaxBytes
	ch <- c.utilization
	ch <- c.hitRatio
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Stats()

	ch <- prometheus.MustNewConstMetric(c.loadedAssets, prometheus.GaugeValue, float64(s.LoadedAssets))
	ch <- prometheus.MustNewConstMetric(c.pendingAssets, prometheus.GaugeValue, float64(s.PendingAssets))
	ch <- prometheus.MustNewConstMetric(c.failedLoads, prometheus.CounterValue, float64(s.FailedLoads))
	ch <- prometheus.MustNewConstMetric(c.cacheBytes, prometheus.GaugeValue, float64(s.TotalSizeBytes))
	ch <- prometheus.MustNewConstMetric(c.cacheMaxBytes, prometheus.GaugeValue, float64(s.MaxSizeBytes))
	ch <- prometheus.MustNewConstMetric(c.utilization, prometheus.GaugeValue, s.UtilizationRatio())
	ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, s.HitRatio())
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.CacheHits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.CacheMisses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
}
