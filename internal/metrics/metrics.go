// Package metrics defines the Prometheus collectors shared by the pipeline.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FeedEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phishwatch_feed_entries_total",
		Help: "New windowed feed entries emitted by the puller",
	})

	FetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phishwatch_fetch_errors_total",
		Help: "Poll cycles skipped because the feed source was unavailable",
	})

	BatchesPushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phishwatch_batches_pushed_total",
		Help: "Batches delivered to the ingestion service",
	})

	PushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phishwatch_push_errors_total",
		Help: "Batch deliveries that failed and went to the outbox",
	})

	Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phishwatch_verdicts_total",
		Help: "Verdicts recorded, by label",
	}, []string{"label"})

	ReputationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phishwatch_reputation_errors_total",
		Help: "Failed reputation lookups, by reason",
	}, []string{"reason"})
)

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()
}
