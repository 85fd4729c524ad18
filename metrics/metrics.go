// Package metrics exports cache activity to Prometheus.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/krisalay/tiered-cache/types"
)

// Event label values.
const (
	EventHit        = "hit"
	EventMiss       = "miss"
	EventEviction   = "eviction"
	EventExpire     = "expire"
	EventPromotion  = "promotion"
	EventStaleServe = "stale_serve"
	EventTimeout    = "timeout"
)

// StatsFunc returns the current stats of every tier.
type StatsFunc func() []types.TierStats

/*
Collector counts cache events and exports tier occupancy.

It is used two ways at once: the cache reports events through the
types.Metrics methods, and a Prometheus registry scrapes it as a
prometheus.Collector. Occupancy gauges are read from the bound StatsFunc at
scrape time, so they are never stale.
*/
type Collector struct {
	events    *prometheus.CounterVec
	refreshes prometheus.Counter

	entries    *prometheus.Desc
	maxEntries *prometheus.Desc
	bytes      *prometheus.Desc
	maxBytes   *prometheus.Desc
	hitRate    *prometheus.Desc
	errors     *prometheus.Desc
	avgRead    *prometheus.Desc
	avgWrite   *prometheus.Desc

	mu     sync.RWMutex
	source StatsFunc
}

// New creates a collector whose metric names start with namespace.
func New(namespace string) *Collector {
	tierLabel := []string{"tier"}
	return &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Cache events by tier and kind",
		}, []string{"tier", "event"}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Refresh hook invocations after a stale serve",
		}),
		entries:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "entries"), "Entries currently held by tier", tierLabel, nil),
		maxEntries: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "max_entries"), "Configured entry limit by tier", tierLabel, nil),
		bytes:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "size_bytes"), "Accounted bytes held by tier", tierLabel, nil),
		maxBytes:   prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "max_size_bytes"), "Configured byte limit by tier", tierLabel, nil),
		hitRate:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "hit_ratio"), "Hits over lookups by tier", tierLabel, nil),
		errors:     prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "errors"), "Failed tier operations", tierLabel, nil),
		avgRead:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "avg_query_milliseconds"), "Average read time by tier", tierLabel, nil),
		avgWrite:   prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "avg_write_milliseconds"), "Average write time by tier", tierLabel, nil),
	}
}

// Bind sets where occupancy gauges are read from.
func (c *Collector) Bind(source StatsFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = source
}

func (c *Collector) Hit(tier types.TierName)        { c.inc(tier, EventHit) }
func (c *Collector) Miss(tier types.TierName)       { c.inc(tier, EventMiss) }
func (c *Collector) Eviction(tier types.TierName)   { c.inc(tier, EventEviction) }
func (c *Collector) Expire(tier types.TierName)     { c.inc(tier, EventExpire) }
func (c *Collector) Promotion(tier types.TierName)  { c.inc(tier, EventPromotion) }
func (c *Collector) StaleServe(tier types.TierName) { c.inc(tier, EventStaleServe) }
func (c *Collector) Timeout(tier types.TierName)    { c.inc(tier, EventTimeout) }
func (c *Collector) Refresh()                       { c.refreshes.Inc() }

func (c *Collector) inc(tier types.TierName, event string) {
	c.events.WithLabelValues(string(tier), event).Inc()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.events.Describe(ch)
	c.refreshes.Describe(ch)
	for _, d := range []*prometheus.Desc{c.entries, c.maxEntries, c.bytes, c.maxBytes, c.hitRate, c.errors, c.avgRead, c.avgWrite} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.events.Collect(ch)
	c.refreshes.Collect(ch)

	c.mu.RLock()
	source := c.source
	c.mu.RUnlock()
	if source == nil {
		return
	}

	for _, s := range source() {
		tier := string(s.Tier)
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.CurrentEntries), tier)
		ch <- prometheus.MustNewConstMetric(c.maxEntries, prometheus.GaugeValue, float64(s.MaxEntries), tier)
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(s.TotalSizeBytes), tier)
		ch <- prometheus.MustNewConstMetric(c.maxBytes, prometheus.GaugeValue, float64(s.MaxSizeBytes), tier)
		ch <- prometheus.MustNewConstMetric(c.hitRate, prometheus.GaugeValue, s.HitRate, tier)
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.ErrorCount), tier)
		ch <- prometheus.MustNewConstMetric(c.avgRead, prometheus.GaugeValue, s.AverageQueryTimeMs, tier)
		ch <- prometheus.MustNewConstMetric(c.avgWrite, prometheus.GaugeValue, s.AverageWriteTimeMs, tier)
	}
}

var (
	_ types.Metrics        = (*Collector)(nil)
	_ prometheus.Collector = (*Collector)(nil)
)
