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
	"phishwatch/internal/feed"
	"phishwatch/internal/ingest"
	"phishwatch/internal/logging"
	"phishwatch/internal/metrics"
	"phishwatch/internal/notify"
	"phishwatch/internal/puller"
	"phishwatch/internal/recorder"
	"phishwatch/internal/storage"
)

func main() {
	cfg, err := config.LoadPuller()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)

	for _, path := range []string{cfg.StatePath, cfg.FeedLogPath} {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				log.Error("create data directory", "path", dir, "error", err)
				os.Exit(1)
			}
		}
	}

	store, err := storage.NewSQLite(cfg.StatePath)
	if err != nil {
		log.Error("open state database", "path", cfg.StatePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	feedLog, err := recorder.NewFeedLog(cfg.FeedLogPath)
	if err != nil {
		log.Error("open feed log", "path", cfg.FeedLogPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = feedLog.Close() }()

	fetchClient := &http.Client{Timeout: 30 * time.Second}
	var source feed.Source
	switch cfg.FeedFormat {
	case config.FormatRSS:
		source = feed.NewRSSSource(fetchClient, cfg.FeedSourceURL, cfg.FeedToken, log)
	default:
		source = feed.NewCSVSource(fetchClient, cfg.FeedSourceURL, cfg.FeedToken, log)
	}

	pushClient := ingest.New(&http.Client{Timeout: 15 * time.Second}, cfg.IngestionEndpoint)

	p := puller.New(store, source, pushClient, feedLog, log)
	p.SetIntervals(cfg.PullInterval, cfg.WindowDuration)
	p.SetSeenRetention(cfg.SeenRetention)

	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		n, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, log)
		if err != nil {
			log.Error("create telegram notifier", "error", err)
			os.Exit(1)
		}
		p.SetNotifier(n)
	}

	metrics.Serve(cfg.MetricsAddr, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting feed puller",
		"source", cfg.FeedSourceURL,
		"format", cfg.FeedFormat,
		"pull_interval", cfg.PullInterval,
		"window", cfg.WindowDuration,
	)

	p.Run(ctx)

	log.Info("feed puller stopped")
}
