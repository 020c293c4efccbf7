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

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build service")
	}
	defer svc.Close()

	schedulerDone := make(chan struct{})
	if cfg.RunScheduler {
		go func() {
			defer close(schedulerDone)
			_ = svc.Scheduler.Run(ctx)
		}()
	} else {
		close(schedulerDone)
		logger.Info().Msg("embedded scheduler disabled, run cmd/worker")
	}

	server := infra.NewHTTPServer(cfg, svc.Router)
	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("store", cfg.StoreDriver).
			Str("registry", cfg.RegistryDriver).
			Str("storage", cfg.StorageDriver).
			Str("video", cfg.VideoProvider).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	cancel()
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduler did not stop in time")
	}
	logger.Info().Msg("server stopped")
}
