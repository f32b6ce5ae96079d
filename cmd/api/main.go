package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/apascualco/careway/internal/infrastructure/config"
	"github.com/apascualco/careway/internal/infrastructure/http"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gateway stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(version, commit, buildDate)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.SetDefault(newLogger(cfg))

	s, err := http.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting gateway",
		slog.Int("port", cfg.Port),
		slog.String("prefix", cfg.GatewayPrefix),
		slog.Int("routes", len(cfg.Routes)),
		slog.String("lb_strategy", cfg.LBStrategy),
		slog.Bool("cache", cfg.CacheEnabled),
		slog.String("auth_mode", cfg.AuthMode),
		slog.String("env", cfg.Env),
		slog.String("version", version),
		slog.String("commit", commit),
		slog.String("build_date", buildDate),
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Run()
	}()

	var runErr error
	select {
	case runErr = <-serveErr:
		if runErr == nil {
			runErr = errors.New("listener closed unexpectedly")
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received", slog.Duration("timeout", cfg.ShutdownTimeout))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("forced shutdown: %w", err))
	}

	slog.Info("gateway exited")
	return runErr
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindDuration {
				a.Value = slog.StringValue(a.Value.Duration().String())
			}
			return a
		},
	}

	if cfg.Env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
