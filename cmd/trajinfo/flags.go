package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	Frames      int
	Play        bool
	PlayFrames  int
	Seek        float64
	Agents      int
	Timeout     time.Duration
	Metrics     bool
	ShowVersion bool
	ShowHelp    bool
	Validate    bool

	// Path is the container file to inspect. Empty with -play selects the
	// built-in orbit simulation.
	Path string
}

func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("TRAJINFO_CONFIG", ""),
		"Path to a YAML or JSON configuration file (env: TRAJINFO_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("TRAJINFO_CONFIG", ""),
		"Path to a YAML or JSON configuration file (env: TRAJINFO_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("TRAJINFO_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: TRAJINFO_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("TRAJINFO_LOG_FORMAT", ""),
		"Log format: json, text (env: TRAJINFO_LOG_FORMAT)")

	fs.IntVar(&cfg.Frames, "frames",
		getEnvInt("TRAJINFO_FRAMES", 5),
		"Number of leading frames to summarize, -1 for all (env: TRAJINFO_FRAMES)")

	fs.BoolVar(&cfg.Play, "play", false, "Play the trajectory through a playback controller")
	fs.IntVar(&cfg.PlayFrames, "play-frames", 20, "Frames to print while playing")
	fs.Float64Var(&cfg.Seek, "seek", -1, "Simulation time to seek to before playing")
	fs.IntVar(&cfg.Agents, "agents", 0, "Agents in the built-in simulation, 0 uses the configured count")
	fs.DurationVar(&cfg.Timeout, "timeout",
		getEnvDuration("TRAJINFO_TIMEOUT", 30*time.Second),
		"Give up playing after this long (env: TRAJINFO_TIMEOUT)")

	fs.BoolVar(&cfg.Metrics, "metrics", false, "Print Prometheus metrics after playing")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(stderr, fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 1 {
		return nil, fmt.Errorf("expected at most one container file, got %d", fs.NArg())
	}
	cfg.Path = fs.Arg(0)
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp || cfg.Validate {
		return nil
	}

	if cfg.Path == "" && !cfg.Play {
		return fmt.Errorf("a container file is required unless -play is set")
	}
	if cfg.Frames < -1 {
		return fmt.Errorf("invalid frame count: %d", cfg.Frames)
	}
	if cfg.PlayFrames <= 0 {
		return fmt.Errorf("invalid play frame count: %d", cfg.PlayFrames)
	}
	if cfg.Agents < 0 {
		return fmt.Errorf("invalid agent count: %d", cfg.Agents)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("invalid timeout: %s", cfg.Timeout)
	}
	return nil
}

func printDetailedHelp(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - Trajectory container inspector

Usage: %s [options] [container-file]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Summarize a container and its first 10 frames
  %s -frames=10 run.traj

  # Play a container from t=2.5 through the playback controller
  %s -play -seek=2.5 run.traj

  # Play the built-in orbit simulation with debug logging
  %s -play -agents=4 -log-level=debug -log-format=text

Version: %s
`, appName, appName, appName, Version)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
