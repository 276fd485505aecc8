// Package storage defines the puller's persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"phishwatch/internal/model"
)

// PendingBatch is one batch whose delivery to the ingestion service has not
// been confirmed yet.
type PendingBatch struct {
	ID        int64
	Records   model.IngestRequest
	CreatedAt time.Time
}

// Storage is the interface for the puller's durable state: the set of urls
// already emitted and the outbox of undelivered batches.
type Storage interface {
	MarkEmitted(ctx context.Context, url string, at time.Time) error
	IsEmitted(ctx context.Context, url string) (bool, error)
	PruneEmitted(ctx context.Context, before time.Time) (int64, error)

	EnqueueBatch(ctx context.Context, batch model.IngestRequest, at time.Time) (int64, error)
	PendingBatches(ctx context.Context) ([]PendingBatch, error)
	ConfirmBatch(ctx context.Context, id int64) error

	Close() error
}
