package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/trajstream/metric"
)

// cacheMetrics holds Prometheus metrics for frame cache operations.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	adds      prometheus.Counter
	evictions prometheus.Counter
	reorders  prometheus.Counter

	bytes  prometheus.Gauge
	frames prometheus.Gauge
}

func newCacheMetrics(registry *metric.MetricsRegistry, prefix string) (*cacheMetrics, error) {
	labels := prometheus.Labels{"component": prefix}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "trajstream",
			Subsystem:   "frame_cache",
			Name:        name,
			ConstLabels: labels,
			Help:        help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "trajstream",
			Subsystem:   "frame_cache",
			Name:        name,
			ConstLabels: labels,
			Help:        help,
		})
	}

	m := &cacheMetrics{
		hits:      counter("hits_total", "Total number of frame lookups served from cache"),
		misses:    counter("misses_total", "Total number of frame lookups not in cache"),
		adds:      counter("adds_total", "Total number of frames added"),
		evictions: counter("evictions_total", "Total number of frames evicted for capacity"),
		reorders:  counter("reorders_total", "Total number of frames that arrived out of order"),
		bytes:     gauge("size_bytes", "Estimated bytes held by the cache"),
		frames:    gauge("frames", "Number of frames held by the cache"),
	}

	for name, c := range map[string]prometheus.Counter{
		"frame_cache_hits":      m.hits,
		"frame_cache_misses":    m.misses,
		"frame_cache_adds":      m.adds,
		"frame_cache_evictions": m.evictions,
		"frame_cache_reorders":  m.reorders,
	} {
		if err := registry.RegisterCounter(prefix, name, c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(prefix, "frame_cache_size_bytes", m.bytes); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "frame_cache_frames", m.frames); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *cacheMetrics) recordLookup(hit bool) {
	if hit {
		m.hits.Inc()
		return
	}
	m.misses.Inc()
}

func (m *cacheMetrics) updateSize(bytes, frames int) {
	m.bytes.Set(float64(bytes))
	m.frames.Set(float64(frames))
}
