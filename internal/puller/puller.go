// Package puller implements the feed polling control loop.
package puller

import (
	"context"
	"log/slog"
	"time"

	"phishwatch/internal/feed"
	"phishwatch/internal/metrics"
	"phishwatch/internal/model"
	"phishwatch/internal/notify"
	"phishwatch/internal/storage"
	"phishwatch/internal/window"
)

// Pusher delivers one batch to the ingestion service.
type Pusher interface {
	Push(ctx context.Context, batch model.IngestRequest) ([]model.Verdict, error)
}

// FeedLog appends windowed feed entries to the local CSV log.
type FeedLog interface {
	Append(e model.FeedEntry, pulledAt time.Time) error
}

// Puller periodically fetches the feed, window-filters and deduplicates it,
// logs the surviving entries and submits them as one batch. At most one poll
// cycle is active at a time; a cycle that overruns the interval delays the
// next tick rather than overlapping it.
type Puller struct {
	store    storage.Storage
	source   feed.Source
	pusher   Pusher
	feedLog  FeedLog
	notifier notify.Notifier
	log      *slog.Logger

	interval  time.Duration
	window    time.Duration
	retention time.Duration
	now       func() time.Time
}

// New creates a Puller with default 5-minute poll interval and window.
func New(store storage.Storage, source feed.Source, pusher Pusher, feedLog FeedLog, log *slog.Logger) *Puller {
	return &Puller{
		store:     store,
		source:    source,
		pusher:    pusher,
		feedLog:   feedLog,
		notifier:  notify.Noop{},
		log:       log,
		interval:  5 * time.Minute,
		window:    5 * time.Minute,
		retention: 24 * time.Hour,
		now:       time.Now,
	}
}

// SetIntervals overrides the poll interval and window duration. The two are
// independent and may differ.
func (p *Puller) SetIntervals(poll, windowDur time.Duration) {
	p.interval = poll
	p.window = windowDur
}

// SetSeenRetention overrides how long emitted urls are remembered.
func (p *Puller) SetSeenRetention(d time.Duration) { p.retention = d }

// SetNotifier installs a tick-summary notifier.
func (p *Puller) SetNotifier(n notify.Notifier) { p.notifier = n }

// SetClock overrides the time source (useful for testing).
func (p *Puller) SetClock(now func() time.Time) { p.now = now }

// Run starts the polling loop, blocking until ctx is cancelled.
func (p *Puller) Run(ctx context.Context) {
	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick runs one poll cycle. Failures are logged and skip the cycle; nothing
// here is fatal to the loop.
func (p *Puller) tick(ctx context.Context) {
	now := p.now().UTC()

	p.flushOutbox(ctx)

	entries, err := p.source.Fetch(ctx)
	if err != nil {
		metrics.FetchErrors.Inc()
		p.log.Error("fetch feed", "error", err)
		return
	}
	if len(entries) == 0 {
		p.log.Debug("empty feed snapshot")
		return
	}

	windowed := window.Dedup(window.Filter(entries, p.window, now))

	fresh := make([]model.FeedEntry, 0, len(windowed))
	for _, e := range windowed {
		emitted, err := p.store.IsEmitted(ctx, e.URL)
		if err != nil {
			p.log.Error("check emitted", "url", e.URL, "error", err)
			continue
		}
		if emitted {
			continue
		}
		if err := p.store.MarkEmitted(ctx, e.URL, now); err != nil {
			p.log.Error("mark emitted", "url", e.URL, "error", err)
			continue
		}
		fresh = append(fresh, e)
	}

	if len(fresh) == 0 {
		p.log.Debug("no new entries in window")
		p.pruneSeen(ctx, now)
		return
	}

	for _, e := range fresh {
		if err := p.feedLog.Append(e, now); err != nil {
			p.log.Error("append feed log", "url", e.URL, "error", err)
		}
	}

	batch := make(model.IngestRequest, 0, len(fresh))
	for _, e := range fresh {
		batch = append(batch, model.Record{
			URL:          e.URL,
			DiscoverTime: model.FormatTime(e.DiscoveredAt),
			PulledTime:   model.FormatTime(now),
		})
	}

	pushed := p.deliver(ctx, batch, now)

	metrics.FeedEntries.Add(float64(len(fresh)))
	p.notifier.TickSummary(len(fresh), pushed)
	p.log.Info("poll cycle complete", "new_entries", len(fresh), "delivered", pushed)

	p.pruneSeen(ctx, now)
}

// deliver pushes one batch; on failure the batch is persisted in the outbox
// and retried at the start of later ticks.
func (p *Puller) deliver(ctx context.Context, batch model.IngestRequest, now time.Time) bool {
	if _, err := p.pusher.Push(ctx, batch); err != nil {
		metrics.PushErrors.Inc()
		p.log.Error("push batch", "size", len(batch), "error", err)
		if _, err := p.store.EnqueueBatch(ctx, batch, now); err != nil {
			p.log.Error("enqueue batch", "error", err)
		}
		return false
	}
	metrics.BatchesPushed.Inc()
	return true
}

// flushOutbox retries batches whose delivery was never confirmed, preserving
// batch boundaries and oldest-first order. The first failure stops the flush;
// the service is likely still down.
func (p *Puller) flushOutbox(ctx context.Context) {
	pending, err := p.store.PendingBatches(ctx)
	if err != nil {
		p.log.Error("list pending batches", "error", err)
		return
	}

	for _, b := range pending {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.pusher.Push(ctx, b.Records); err != nil {
			p.log.Warn("redeliver batch", "batch_id", b.ID, "error", err)
			return
		}
		metrics.BatchesPushed.Inc()
		if err := p.store.ConfirmBatch(ctx, b.ID); err != nil {
			p.log.Error("confirm batch", "batch_id", b.ID, "error", err)
			return
		}
		p.log.Info("redelivered batch", "batch_id", b.ID, "size", len(b.Records))
	}
}

func (p *Puller) pruneSeen(ctx context.Context, now time.Time) {
	n, err := p.store.PruneEmitted(ctx, now.Add(-p.retention))
	if err != nil {
		p.log.Error("prune emitted urls", "error", err)
		return
	}
	if n > 0 {
		p.log.Debug("pruned emitted urls", "count", n)
	}
}
