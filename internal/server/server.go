// Package server implements the ingestion/evaluation HTTP service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"phishwatch/internal/metrics"
	"phishwatch/internal/model"
	"phishwatch/internal/reputation"
)

// Checker resolves one url to a verdict.
type Checker interface {
	Check(ctx context.Context, url string) (model.Verdict, error)
}

// Recorder appends one verdict row to the results log.
type Recorder interface {
	Append(rec model.Record, v model.Verdict) error
}

const defaultWorkers = 4

// Server accepts url batches, resolves each url against the reputation
// checker and records every verdict. URLs already resolved during this
// run are answered from the in-memory resolved-set without a new lookup.
type Server struct {
	checker Checker
	results Recorder
	log     *slog.Logger
	router  *mux.Router
	workers int
	now     func() time.Time

	mu       sync.Mutex
	resolved map[string]model.Verdict
}

// New creates a Server with the default per-batch worker pool size.
func New(checker Checker, results Recorder, log *slog.Logger) *Server {
	s := &Server{
		checker:  checker,
		results:  results,
		log:      log,
		router:   mux.NewRouter(),
		workers:  defaultWorkers,
		now:      time.Now,
		resolved: make(map[string]model.Verdict),
	}
	s.routes()
	return s
}

// SetWorkers overrides the per-batch concurrency limit.
func (s *Server) SetWorkers(n int) {
	if n > 0 {
		s.workers = n
	}
}

// SetClock overrides the time source (useful for testing).
func (s *Server) SetClock(now func() time.Time) { s.now = now }

// Router returns the HTTP handler for the service.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.HandleFunc("/ingest-urls", s.handleIngest).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleIngest processes one batch. The response is written only after every
// url in the batch has been resolved and recorded, so the caller's delivered
// state is accurate.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var batch model.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8*1024*1024)).Decode(&batch); err != nil {
		http.Error(w, "malformed batch: "+err.Error(), http.StatusBadRequest)
		return
	}

	records := dedupBatch(batch)
	if dropped := len(batch) - len(records); dropped > 0 {
		s.log.Warn("dropped invalid or duplicate records", "count", dropped)
	}

	s.log.Info("ingesting batch", "size", len(records))
	verdicts := s.process(r.Context(), records)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(verdicts); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

// dedupBatch drops records with an empty url and keeps only the first
// occurrence of each url within the batch.
func dedupBatch(batch model.IngestRequest) []model.Record {
	seen := make(map[string]struct{}, len(batch))
	var records []model.Record
	for _, rec := range batch {
		if rec.URL == "" {
			continue
		}
		if _, ok := seen[rec.URL]; ok {
			continue
		}
		seen[rec.URL] = struct{}{}
		records = append(records, rec)
	}
	return records
}

// process resolves every record with a bounded worker pool. One slow or
// failing lookup never blocks the rest of the batch, and a failed lookup
// still yields a recorded row labeled unknown.
func (s *Server) process(ctx context.Context, records []model.Record) []model.Verdict {
	verdicts := make([]model.Verdict, len(records))

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for i, rec := range records {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, rec model.Record) {
			defer wg.Done()
			defer func() { <-sem }()
			verdicts[i] = s.resolve(ctx, rec)
		}(i, rec)
	}
	wg.Wait()

	return verdicts
}

func (s *Server) resolve(ctx context.Context, rec model.Record) model.Verdict {
	s.mu.Lock()
	if v, ok := s.resolved[rec.URL]; ok {
		s.mu.Unlock()
		return v
	}
	s.mu.Unlock()

	v, err := s.checker.Check(ctx, rec.URL)
	if err != nil {
		metrics.ReputationErrors.WithLabelValues(failureReason(err)).Inc()
		s.log.Warn("reputation check failed", "url", rec.URL, "error", err)
		v = model.Verdict{
			URL:       rec.URL,
			Label:     model.LabelUnknown,
			CheckedAt: s.now().UTC(),
			Err:       err.Error(),
		}
	}

	// A concurrent batch may have resolved the same url in the meantime;
	// the first verdict wins and only that one is recorded.
	s.mu.Lock()
	if existing, ok := s.resolved[rec.URL]; ok {
		s.mu.Unlock()
		return existing
	}
	s.resolved[rec.URL] = v
	s.mu.Unlock()

	if err := s.results.Append(rec, v); err != nil {
		s.log.Error("record verdict", "url", rec.URL, "error", err)
	}
	metrics.Verdicts.WithLabelValues(string(v.Label)).Inc()

	return v
}

func failureReason(err error) string {
	if errors.Is(err, reputation.ErrRateLimited) {
		return "rate_limited"
	}
	return "transport"
}
