package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"visitplan/internal/api"
	"visitplan/internal/config"
	"visitplan/internal/logger"
	"visitplan/internal/metrics"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	path := flag.String("config", os.Getenv("VISITPLAN_CONFIG"), "path to a YAML or JSON config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		bootLog := logger.New("api", "info")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New("api", cfg.Logging.Level)
	metrics.RegisterDefault()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvDeps, err := api.NewServer(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init server")
	}
	defer srvDeps.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srvDeps.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("distance", cfg.Distance.Provider).
			Str("cache", cfg.Cache.Driver).
			Str("broker", cfg.Broker.Driver).
			Msg("API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}
