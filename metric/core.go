package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains pipeline-level metrics shared by every source and controller.
// Component specific metrics (cache, buffer, remote transport) register
// themselves through MetricsRegistrar.
type Metrics struct {
	FramesDecoded   *prometheus.CounterVec
	DecodeErrors    *prometheus.CounterVec
	SourceConnected *prometheus.GaugeVec
	PlaybackState   *prometheus.GaugeVec
	SeekDuration    *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		FramesDecoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trajstream",
				Subsystem: "frames",
				Name:      "decoded_total",
				Help:      "Total number of frames decoded",
			},
			[]string{"source"},
		),

		DecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trajstream",
				Subsystem: "frames",
				Name:      "decode_errors_total",
				Help:      "Total number of frames that failed to decode",
			},
			[]string{"source"},
		),

		SourceConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "trajstream",
				Subsystem: "source",
				Name:      "connected",
				Help:      "Source connection status (0=disconnected, 1=connected)",
			},
			[]string{"source"},
		),

		PlaybackState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "trajstream",
				Subsystem: "playback",
				Name:      "state",
				Help:      "Playback state (0=idle, 1=connecting, 2=initializing, 3=streaming, 4=paused, 5=aborting)",
			},
			[]string{"controller"},
		),

		SeekDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trajstream",
				Subsystem: "playback",
				Name:      "seek_duration_seconds",
				Help:      "Time from seek request until the target frame was served",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"controller", "result"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trajstream",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by kind",
			},
			[]string{"component", "kind"},
		),
	}
}

func (c *Metrics) register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.FramesDecoded,
		c.DecodeErrors,
		c.SourceConnected,
		c.PlaybackState,
		c.SeekDuration,
		c.ErrorsTotal,
	)
}

// RecordFrames adds n decoded frames for a source
func (c *Metrics) RecordFrames(source string, n int) {
	c.FramesDecoded.WithLabelValues(source).Add(float64(n))
}

// RecordDecodeError counts a frame that could not be decoded
func (c *Metrics) RecordDecodeError(source string) {
	c.DecodeErrors.WithLabelValues(source).Inc()
}

// RecordSourceConnected updates source connection status
func (c *Metrics) RecordSourceConnected(source string, connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.SourceConnected.WithLabelValues(source).Set(value)
}

// RecordPlaybackState updates the controller state gauge
func (c *Metrics) RecordPlaybackState(controller string, state int) {
	c.PlaybackState.WithLabelValues(controller).Set(float64(state))
}

// RecordSeek observes a completed or abandoned seek
func (c *Metrics) RecordSeek(controller, result string, d time.Duration) {
	c.SeekDuration.WithLabelValues(controller, result).Observe(d.Seconds())
}

// RecordError increments the error counter
func (c *Metrics) RecordError(component, kind string) {
	c.ErrorsTotal.WithLabelValues(component, kind).Inc()
}
