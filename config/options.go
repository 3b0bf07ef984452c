package config

import (
	"io"
	"log/slog"
	"strings"

	"github.com/c360/trajstream/metric"
	"github.com/c360/trajstream/playback"
	"github.com/c360/trajstream/source"
)

// RemoteOptions returns the source options for a RemoteSource.
func (c *Config) RemoteOptions(logger *slog.Logger, registry *metric.MetricsRegistry) []source.Option {
	return append(c.sourceOptions(logger, registry),
		source.WithQueueSize(c.Remote.QueueSize),
		source.WithTimeouts(c.Remote.HandshakeTimeout.Std(), c.Remote.WriteTimeout.Std()),
	)
}

// ClientOptions returns the source options for a ClientSource.
func (c *Config) ClientOptions(logger *slog.Logger, registry *metric.MetricsRegistry) []source.Option {
	return append(c.sourceOptions(logger, registry),
		source.WithTickInterval(c.Client.TickInterval.Std()),
	)
}

// FileOptions returns the source options for a FileSource.
func (c *Config) FileOptions(logger *slog.Logger, registry *metric.MetricsRegistry) []source.Option {
	return append(c.sourceOptions(logger, registry),
		source.WithTickInterval(c.File.TickInterval.Std()),
	)
}

func (c *Config) sourceOptions(logger *slog.Logger, registry *metric.MetricsRegistry) []source.Option {
	opts := []source.Option{
		source.WithLogger(logger),
		source.WithEventBuffer(c.Playback.EventBuffer),
	}
	if registry != nil {
		opts = append(opts, source.WithMetrics(registry))
	}
	return opts
}

// PlaybackOptions returns the controller options of the playback section.
func (c *Config) PlaybackOptions(logger *slog.Logger, registry *metric.MetricsRegistry) []playback.Option {
	opts := []playback.Option{
		playback.WithLogger(logger),
		playback.WithSeekTimeout(c.Playback.SeekTimeout.Std()),
	}
	if registry != nil {
		opts = append(opts, playback.WithMetrics(registry))
	}
	return opts
}

// NewLogger builds a slog logger writing to w in the configured format.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(l.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
