// Command storyview views the stories of every account listed in a file.
//
// Usage:
//
//	storyview                                  # defaults, reads instagramid.txt
//	storyview -config storyview.yaml           # YAML configuration
//	storyview -targets ids.txt -mode desktop   # visible browser window
//	storyview -status-addr :9090               # expose /status and /metrics
//
// Credentials come from STORYVIEW_USERNAME and STORYVIEW_PASSWORD, loaded
// from the .env file when present.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/storyview/storyview"
)

func main() {
	configPath := flag.String("config", "", "path to storyview.yaml config file")
	targetsPath := flag.String("targets", "", "identifiers file, one per line (overrides config)")
	envFile := flag.String("env", "", "dotenv file with credentials (overrides config)")
	mode := flag.String("mode", "", "browser mode: headless, headful, desktop (overrides config)")
	statusAddr := flag.String("status-addr", "", "serve /health, /status and /metrics on this address")
	logFile := flag.String("log-file", "", "also append logs to this file (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "storyview:", err)
		os.Exit(1)
	}
	override(&cfg.TargetsFile, *targetsPath)
	override(&cfg.EnvFile, *envFile)
	override(&cfg.Browser.Mode, *mode)
	override(&cfg.StatusAddr, *statusAddr)
	override(&cfg.LogFile, *logFile)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "storyview:", err)
		os.Exit(1)
	}

	logger, closeLog, err := newLogger(*logLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "storyview:", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("storyview: fatal", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *storyview.Config) error {
	ids, err := storyview.LoadTargets(cfg.TargetsFile)
	if err != nil {
		return fmt.Errorf("load targets: %w", err)
	}
	if len(ids) == 0 {
		logger.Warn("storyview: no identifiers to process", "file", cfg.TargetsFile)
		return nil
	}

	creds, err := storyview.LoadCredentials(cfg.EnvFile)
	if err != nil {
		return err
	}

	v := storyview.New(cfg, logger)
	defer v.Stop()

	if err := v.Start(ctx); err != nil {
		return err
	}
	if err := v.Login(ctx, creds); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	sum, err := v.Run(ctx, ids)
	logger.Info("storyview: run finished",
		"run_id", sum.RunID,
		"processed", sum.Processed,
		"total", sum.Total,
		"stories", sum.Stories)
	return err
}

func loadConfig(path string) (*storyview.Config, error) {
	if path == "" {
		return storyview.DefaultConfig(), nil
	}
	cfg, err := storyview.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// newLogger builds the JSON logger on stderr, tee'd into logFile when set.
func newLogger(levelName, logFile string) (*slog.Logger, func(), error) {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closeFn = func() { f.Close() }
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, closeFn, nil
}
