// Package prom exports cache signals to Prometheus.
package prom

import (
	"github.com/IvanBrykalov/sheetcache/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	deletes   prometheus.Counter
	evicts    *prometheus.CounterVec
	sizeEnt   prometheus.Gauge
	sizeBytes prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}

	a := &Adapter{
		hits:    counter("hits_total", "Cache hits"),
		misses:  counter("misses_total", "Cache misses (absent or expired)"),
		sets:    counter("sets_total", "Entries written"),
		deletes: counter("deletes_total", "Entries deleted, invalidated or expired"),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Entries dropped by the cache, by reason (lru, memory, ttl)",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEnt:   gauge("size_entries", "Number of resident entries"),
		sizeBytes: gauge("memory_bytes", "Estimated bytes held by resident entries"),
	}
	reg.MustRegister(a.hits, a.misses, a.sets, a.deletes, a.evicts, a.sizeEnt, a.sizeBytes)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Set increments the write counter.
func (a *Adapter) Set() { a.sets.Inc() }

// Delete increments the delete counter.
func (a *Adapter) Delete() { a.deletes.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size updates gauges for the number of entries and estimated bytes.
func (a *Adapter) Size(entries int, bytes int64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeBytes.Set(float64(bytes))
}

var _ cache.Metrics = (*Adapter)(nil)

// StatsSource is anything with a Stats snapshot, typically a cache.Cache.
type StatsSource interface {
	Stats() cache.Stats
}

// RegisterStats exports values that are only meaningful as a snapshot
// (hit ratio, configured limits) by reading src on every scrape.
func RegisterStats(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels, src StatsSource) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gaugeFunc := func(name, help string, f func(cache.Stats) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, func() float64 { return f(src.Stats()) })
	}
	reg.MustRegister(
		gaugeFunc("hit_ratio", "hits / (hits + misses) since the last stats reset",
			func(s cache.Stats) float64 { return s.HitRate }),
		gaugeFunc("max_entries", "Configured entry limit (negative: unbounded)",
			func(s cache.Stats) float64 { return float64(s.MaxEntries) }),
		gaugeFunc("max_memory_bytes", "Configured memory limit (negative: unbounded)",
			func(s cache.Stats) float64 { return float64(s.MaxMemoryBytes) }),
	)
}
