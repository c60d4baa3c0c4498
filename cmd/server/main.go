package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/bootstrap"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/config"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/infrastructure/telemetry"
)

var version = "dev"

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := telemetry.Init(ctx, telemetry.Options{
		Enabled:     cfg.OTelEnabled,
		Stdout:      cfg.OTelStdout,
		ServiceName: "nexus-experience",
		Version:     version,
	}); err != nil {
		logger.Fatal().Err(err).Msg("telemetry error")
	}
	defer telemetry.Shutdown(context.Background())

	rt, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup error")
	}
	defer rt.Close()

	if err := bootstrap.Serve(ctx, rt, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		return
	}
	logger.Info().Msg("server stopped")
}
