package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"phishwatch/internal/model"
	"phishwatch/migrations"
)

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// MarkEmitted records that a url has been emitted in some poll cycle.
func (s *SQLite) MarkEmitted(ctx context.Context, url string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_urls (url, emitted_at) VALUES (?, ?)`,
		url, model.FormatTime(at),
	)
	if err != nil {
		return fmt.Errorf("mark emitted: %w", err)
	}
	return nil
}

// IsEmitted checks whether a url has already been emitted.
func (s *SQLite) IsEmitted(ctx context.Context, url string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_urls WHERE url = ?`, url,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check emitted: %w", err)
	}
	return count > 0, nil
}

// PruneEmitted deletes emitted-url rows older than the given time, keeping
// the dedup set bounded. Returns the number of rows removed.
func (s *SQLite) PruneEmitted(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM seen_urls WHERE emitted_at < ?`, model.FormatTime(before),
	)
	if err != nil {
		return 0, fmt.Errorf("prune emitted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// EnqueueBatch stores a batch whose delivery has not been confirmed.
func (s *SQLite) EnqueueBatch(ctx context.Context, batch model.IngestRequest, at time.Time) (int64, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return 0, fmt.Errorf("marshal batch: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (payload, created_at) VALUES (?, ?)`,
		string(payload), model.FormatTime(at),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue batch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// PendingBatches returns all undelivered batches, oldest first.
func (s *SQLite) PendingBatches(ctx context.Context) ([]PendingBatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, created_at FROM outbox ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var batches []PendingBatch
	for rows.Next() {
		var b PendingBatch
		var payload, created string
		if err := rows.Scan(&b.ID, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &b.Records); err != nil {
			return nil, fmt.Errorf("unmarshal batch %d: %w", b.ID, err)
		}
		b.CreatedAt, _ = time.Parse(model.TimeLayout, created)
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ConfirmBatch removes a delivered batch from the outbox.
func (s *SQLite) ConfirmBatch(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("confirm batch: %w", err)
	}
	return nil
}
