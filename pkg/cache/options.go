package cache

import (
	"log/slog"

	"github.com/c360/trajstream/metric"
)

// Option configures FrameCache behavior.
type Option func(*cacheOptions)

// cacheOptions holds internal configuration for cache instances.
type cacheOptions struct {
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
	evictCallback EvictCallback
	onUpdate      UpdateCallback
	logger        *slog.Logger
}

// WithMetrics enables Prometheus metrics export for cache statistics.
// If registry is nil or prefix empty, this option is ignored.
func WithMetrics(registry *metric.MetricsRegistry, prefix string) Option {
	return func(opts *cacheOptions) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a callback invoked for frames evicted for capacity.
func WithEvictionCallback(callback EvictCallback) Option {
	return func(opts *cacheOptions) {
		opts.evictCallback = callback
	}
}

// WithUpdateCallback sets the callback fired after every add, eviction or clear.
func WithUpdateCallback(callback UpdateCallback) Option {
	return func(opts *cacheOptions) {
		opts.onUpdate = callback
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *cacheOptions) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

func applyOptions(options ...Option) *cacheOptions {
	opts := &cacheOptions{
		logger: slog.Default(),
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
