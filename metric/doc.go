// Package metric wraps a Prometheus registry for trajstream components.
//
// MetricsRegistry owns a private prometheus.Registry populated with the core
// pipeline metrics (frames decoded, decode errors, source connection state,
// playback state, seek latency, errors by kind) and the Go runtime collectors.
// Components register their own collectors through MetricsRegistrar; a second
// registration under the same component and name is rejected as invalid.
//
//	registry := metric.NewMetricsRegistry()
//	frameCache := cache.New(cache.Config{Enabled: true, MaxSize: 64 << 20},
//	    cache.WithMetrics(registry, "viewer"))
//
// Exposing the registry over HTTP is left to the embedding application, for
// example with promhttp.HandlerFor(registry.PrometheusRegistry(), ...).
package metric
