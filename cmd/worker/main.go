package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-studio-backend/internal/application"
	"ai-studio-backend/internal/config"
	"ai-studio-backend/internal/infra/metrics"
	"ai-studio-backend/internal/infra/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop AI fallback)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app, err := application.New(ctx, cfg)
	if err != nil {
		log.Fatalf("wire: %v", err)
	}
	defer app.Close()

	pool := worker.NewPool(cfg.Queue.Workers, app.Log)
	pool.Start(ctx)

	handlers := worker.DefaultHandlers(app.AI, cfg.AI.DefaultModel)
	runner := worker.NewRunner(app.JobUC, handlers, cfg.Queue.PollInterval, cfg.Queue.ClaimBatchSize, app.Log)
	go runner.Start(ctx, pool)

	admin := metrics.NewAdminServer(cfg.Server.AdminPort)
	go func() {
		if err := admin.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Log.Error().Err(err).Msg("admin server error")
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	app.Log.Info().Msg("shutdown requested")
	cancel()

	// Let in-flight handlers finish their current step.
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = admin.Shutdown(shutdownCtx)
}
