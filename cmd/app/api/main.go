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
	"ai-studio-backend/internal/infra/web"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (debug auth header, noop AI fallback)")
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

	srv := web.NewServer(app.JobUC, app.AgentUC, cfg.Server, cfg.Stream, cfg.Runtime.Dev, app.Log)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Log.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	admin := metrics.NewAdminServer(cfg.Server.AdminPort)
	go func() {
		if err := admin.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Log.Error().Err(err).Msg("admin server error")
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		app.Log.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Log.Warn().Err(err).Msg("http shutdown")
	}
	_ = admin.Shutdown(shutdownCtx)
}
