package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/c360/trajstream/config"
	"github.com/c360/trajstream/metric"
	"github.com/c360/trajstream/pkg/cache"
	"github.com/c360/trajstream/playback"
	"github.com/c360/trajstream/source"
)

const orbitName = "orbit"

// play drives a source through a playback controller and prints the first
// cliCfg.PlayFrames frames the playhead visits.
func play(ctx context.Context, w io.Writer, cfg *config.Config, cliCfg *CLIConfig, logger *slog.Logger) error {
	registry := metric.NewMetricsRegistry()

	var (
		src  source.Source
		name string
		tick time.Duration
	)
	if cfg.File.Path != "" {
		c, closer, err := openContainer(cfg.File.Path)
		if err != nil {
			return fmt.Errorf("open %s: %w", cfg.File.Path, err)
		}
		defer func() { _ = closer.Close() }()

		fs, err := source.NewFileSource(c, cfg.FileOptions(logger, registry)...)
		if err != nil {
			return err
		}
		src, name, tick = fs, filepath.Base(cfg.File.Path), cfg.File.TickInterval.Std()
	} else {
		cs, err := source.NewClientSource(source.NewOrbitModel(cfg.Client.Agents), cfg.ClientOptions(logger, registry)...)
		if err != nil {
			return err
		}
		src, name, tick = cs, orbitName, cfg.Client.TickInterval.Std()
	}

	frames, err := cache.New(cfg.Cache, cache.WithLogger(logger), cache.WithMetrics(registry, "playback"))
	if err != nil {
		return err
	}

	opts := append(cfg.PlaybackOptions(logger, registry),
		playback.WithErrorHandler(func(err error) {
			logger.Warn("Playback error", "error", err)
		}))
	ctrl, err := playback.New(src, frames, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.Close() }()

	if err := ctrl.Connect(ctx, name); err != nil {
		return err
	}
	if cliCfg.Seek >= 0 {
		if err := ctrl.GotoTime(ctx, cliCfg.Seek); err != nil {
			return err
		}
	}
	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	if tick <= 0 {
		tick = source.DefaultTickInterval
	}
	ticker := time.NewTicker(tick / 2)
	defer ticker.Stop()

	_, _ = fmt.Fprintf(w, "\nPlaying %s via %s\n", name, src.Name())
	printed, last := 0, -1
	for printed < cliCfg.PlayFrames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if ctrl.Seeking() {
			continue
		}
		frame, ok := ctrl.CurrentFrame()
		if !ok || frame.FrameNumber == last {
			frame, ok = ctrl.NextFrame()
		}
		if !ok {
			if ctrl.State() == playback.StatePaused {
				break
			}
			continue
		}

		_, _ = fmt.Fprintf(w, "  frame %d  t=%g  agents=%d\n", frame.FrameNumber, frame.Time, len(frame.Agents))
		last = frame.FrameNumber
		printed++
	}

	stats := frames.Stats().Summary()
	logger.Info("Playback finished",
		"frames_printed", printed,
		"cached_frames", frames.NumFrames(),
		"cache_hits", stats.Hits,
		"cache_misses", stats.Misses)

	if cliCfg.Metrics {
		return writeMetrics(w, registry)
	}
	return nil
}

// writeMetrics prints every registered metric in the Prometheus text format.
func writeMetrics(w io.Writer, registry *metric.MetricsRegistry) error {
	families, err := registry.PrometheusRegistry().Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
