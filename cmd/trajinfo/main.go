// Package main implements trajinfo, a developer tool that summarizes binary
// trajectory containers and plays trajectories through the playback
// controller.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/trajstream/config"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "trajinfo"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("trajinfo failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cliCfg, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		_, _ = fmt.Fprintf(stdout, "usage: %s [options] [container-file]\n", appName)
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := cfg.Log.NewLogger(stderr).With("service", appName, "version", Version)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	if cliCfg.Path != "" {
		if err := inspect(stdout, cliCfg.Path, cliCfg.Frames); err != nil {
			return err
		}
	}

	if cliCfg.Play {
		ctx, cancel := context.WithTimeout(ctx, cliCfg.Timeout)
		defer cancel()
		return play(ctx, stdout, cfg, cliCfg, logger)
	}
	return nil
}

// loadConfig loads the configuration file, if any, and applies the logging
// flags over it.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if cliCfg.ConfigPath != "" {
		loaded, err := config.Load(cliCfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	if cliCfg.Agents > 0 {
		cfg.Client.Agents = cliCfg.Agents
	}
	if cliCfg.Path != "" {
		cfg.File.Path = cliCfg.Path
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
