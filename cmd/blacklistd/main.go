package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"phishwatch/internal/config"
	"phishwatch/internal/logging"
	"phishwatch/internal/metrics"
	"phishwatch/internal/recorder"
	"phishwatch/internal/reputation"
	"phishwatch/internal/server"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)

	if dir := filepath.Dir(cfg.ResultsPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	results, err := recorder.NewResults(cfg.ResultsPath)
	if err != nil {
		log.Error("open results log", "path", cfg.ResultsPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = results.Close() }()

	checker := reputation.New(&http.Client{Timeout: 30 * time.Second}, cfg.GSBAPIKey)

	srv := server.New(checker, results, log)
	srv.SetWorkers(cfg.Workers)

	metrics.Serve(cfg.MetricsAddr, log)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown server", "error", err)
		}
	}()

	log.Info("starting blacklist server", "addr", cfg.ListenAddr, "results", cfg.ResultsPath)

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("blacklist server stopped")
}
