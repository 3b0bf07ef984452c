package playback

import (
	"log/slog"
	"time"

	"github.com/c360/trajstream/codec"
	"github.com/c360/trajstream/metric"
)

// ErrorHandler receives asynchronous errors: connection and protocol
// failures, malformed frames and seek timeouts. It is called without the
// controller lock held.
type ErrorHandler func(err error)

// FrameHandler is called with every frame that arrives from the source,
// whether or not the cache keeps it.
type FrameHandler func(frame codec.Frame)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records playback state and seek latency in registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(c *Controller) {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
	}
}

// WithErrorHandler sets the asynchronous error handler.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(c *Controller) {
		c.onError = fn
	}
}

// WithFrameHandler sets a handler for every frame the controller accepts.
// Frames dropped while a seek is pending are not reported.
func WithFrameHandler(fn FrameHandler) Option {
	return func(c *Controller) {
		c.onFrame = fn
	}
}

// WithSeekTimeout abandons a seek that has not been answered within d.
// Zero waits indefinitely.
func WithSeekTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.seekTimeout = d
		}
	}
}
