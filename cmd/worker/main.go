package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"scenestudio/internal/app"
	"scenestudio/internal/infra"
)

// The worker runs only the reconciliation loop. It is meant for deployments
// where API replicas set RUN_SCHEDULER=false and share a Redis registry.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel).With().Str("cmd", "worker").Logger()

	if cfg.RegistryDriver != infra.RegistryDriverRedis {
		logger.Fatal().Str("registry", cfg.RegistryDriver).Msg("worker: a shared redis registry is required")
	}
	if cfg.VideoProvider == infra.VideoProviderSynthetic {
		logger.Warn().Msg("worker: synthetic handles live in the submitting process and will expire here")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build service")
	}
	defer svc.Close()

	if err := svc.Scheduler.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("worker: stopped with error")
		return
	}
	logger.Info().Msg("worker: stopped")
}
