// Package config handles application configuration from an optional YAML file
// and environment variables. Environment variables always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPathEnv names the environment variable pointing at the YAML file.
const ConfigPathEnv = "PHISHWATCH_CONFIG"

// Feed snapshot formats understood by the puller.
const (
	FormatCSV = "csv"
	FormatRSS = "rss"
)

// Puller holds the feed puller configuration.
type Puller struct {
	FeedSourceURL     string
	FeedFormat        string
	FeedToken         string
	IngestionEndpoint string
	PullInterval      time.Duration
	WindowDuration    time.Duration
	SeenRetention     time.Duration
	StatePath         string
	FeedLogPath       string
	MetricsAddr       string
	LogLevel          string
	TelegramToken     string
	TelegramChatID    int64
}

// Server holds the ingestion service configuration.
type Server struct {
	ListenAddr  string
	MetricsAddr string
	GSBAPIKey   string
	ResultsPath string
	Workers     int
	LogLevel    string
}

type fileConfig struct {
	Puller struct {
		FeedSourceURL     string `yaml:"feedSourceUrl"`
		FeedFormat        string `yaml:"feedFormat"`
		IngestionEndpoint string `yaml:"ingestionEndpoint"`
		PullInterval      string `yaml:"pullInterval"`
		WindowDuration    string `yaml:"windowDuration"`
		SeenRetention     string `yaml:"seenRetention"`
		StatePath         string `yaml:"statePath"`
		FeedLogPath       string `yaml:"feedLogPath"`
		MetricsAddr       string `yaml:"metricsAddr"`
	} `yaml:"puller"`
	Server struct {
		ListenAddr  string `yaml:"listenAddr"`
		MetricsAddr string `yaml:"metricsAddr"`
		ResultsPath string `yaml:"resultsPath"`
		Workers     int    `yaml:"workers"`
	} `yaml:"server"`
	LogLevel string `yaml:"logLevel"`
}

func loadFile() (*fileConfig, error) {
	var fc fileConfig
	path := os.Getenv(ConfigPathEnv)
	if path == "" {
		return &fc, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}

// LoadPuller reads the puller configuration. FEED_SOURCE_URL and
// INGESTION_ENDPOINT are required; everything else has a default.
func LoadPuller() (*Puller, error) {
	fc, err := loadFile()
	if err != nil {
		return nil, err
	}

	cfg := &Puller{
		FeedSourceURL:     pick("FEED_SOURCE_URL", fc.Puller.FeedSourceURL, ""),
		FeedFormat:        pick("FEED_FORMAT", fc.Puller.FeedFormat, FormatCSV),
		FeedToken:         os.Getenv("FEED_TOKEN"),
		IngestionEndpoint: pick("INGESTION_ENDPOINT", fc.Puller.IngestionEndpoint, ""),
		StatePath:         pick("STATE_PATH", fc.Puller.StatePath, "./data/puller.db"),
		FeedLogPath:       pick("FEED_LOG_PATH", fc.Puller.FeedLogPath, "./data/evaluation-feed.csv"),
		MetricsAddr:       pick("METRICS_ADDR", fc.Puller.MetricsAddr, ":9101"),
		LogLevel:          pick("LOG_LEVEL", fc.LogLevel, "info"),
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if cfg.FeedSourceURL == "" {
		return nil, fmt.Errorf("FEED_SOURCE_URL is required")
	}
	if cfg.IngestionEndpoint == "" {
		return nil, fmt.Errorf("INGESTION_ENDPOINT is required")
	}
	if cfg.FeedFormat != FormatCSV && cfg.FeedFormat != FormatRSS {
		return nil, fmt.Errorf("unknown FEED_FORMAT %q (want %s or %s)", cfg.FeedFormat, FormatCSV, FormatRSS)
	}

	cfg.PullInterval, err = pickDuration("PULL_INTERVAL", fc.Puller.PullInterval, 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.WindowDuration, err = pickDuration("WINDOW_DURATION", fc.Puller.WindowDuration, 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.SeenRetention, err = pickDuration("SEEN_RETENTION", fc.Puller.SeenRetention, 24*time.Hour)
	if err != nil {
		return nil, err
	}

	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		cfg.TelegramChatID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err)
		}
	}

	return cfg, nil
}

// LoadServer reads the ingestion service configuration. GSB_API_KEY is
// required; everything else has a default.
func LoadServer() (*Server, error) {
	fc, err := loadFile()
	if err != nil {
		return nil, err
	}

	cfg := &Server{
		ListenAddr:  pick("LISTEN_ADDR", fc.Server.ListenAddr, ":8080"),
		MetricsAddr: pick("METRICS_ADDR", fc.Server.MetricsAddr, ":9102"),
		GSBAPIKey:   os.Getenv("GSB_API_KEY"),
		ResultsPath: pick("RESULTS_PATH", fc.Server.ResultsPath, "./data/blacklist-evaluation-results.csv"),
		Workers:     fc.Server.Workers,
		LogLevel:    pick("LOG_LEVEL", fc.LogLevel, "info"),
	}

	if cfg.GSBAPIKey == "" {
		return nil, fmt.Errorf("GSB_API_KEY is required")
	}

	if raw := os.Getenv("INGEST_WORKERS"); raw != "" {
		cfg.Workers, err = strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid INGEST_WORKERS %q: %w", raw, err)
		}
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("INGEST_WORKERS must not be negative")
	}

	return cfg, nil
}

func pick(envKey, fileVal, def string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fileVal != "" {
		return fileVal
	}
	return def
}

func pickDuration(envKey, fileVal string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(envKey)
	if raw == "" {
		raw = fileVal
	}
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", envKey, raw)
	}
	return d, nil
}
