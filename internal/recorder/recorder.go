// Package recorder owns the append-only CSV artifacts produced by the pipeline.
//
// Column names are a contract: downstream feature-extraction and label-splitting
// tools read these files by the fixed names "url" and "label".
package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"phishwatch/internal/model"
)

var feedHeader = []string{"url", "discover_time", "pulled_time"}

var resultHeader = []string{
	"url", "label", "matched_threat_types",
	"discover_time", "pulled_time", "checked_at", "error",
}

// csvFile serializes appends to one CSV file and writes the header exactly
// once, when the file is created or still empty.
type csvFile struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

func openCSV(path string, header []string) (*csvFile, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	c := &csvFile{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := c.append(header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return c, nil
}

func (c *csvFile) append(row []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *csvFile) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.f.Close()
		return err
	}
	return c.f.Close()
}

// FeedLog is the puller's local append-log of windowed feed entries.
type FeedLog struct {
	file *csvFile
}

// NewFeedLog opens (or creates) the feed log at path.
func NewFeedLog(path string) (*FeedLog, error) {
	file, err := openCSV(path, feedHeader)
	if err != nil {
		return nil, err
	}
	return &FeedLog{file: file}, nil
}

// Append writes one feed entry with the time it was pulled.
func (l *FeedLog) Append(e model.FeedEntry, pulledAt time.Time) error {
	if e.URL == "" {
		return fmt.Errorf("refusing to log entry with empty url")
	}
	return l.file.append([]string{
		e.URL,
		model.FormatTime(e.DiscoveredAt),
		model.FormatTime(pulledAt),
	})
}

// Close flushes and closes the log file.
func (l *FeedLog) Close() error { return l.file.close() }

// Results is the verdict log written by the ingestion service.
type Results struct {
	file *csvFile
}

// NewResults opens (or creates) the results log at path.
func NewResults(path string) (*Results, error) {
	file, err := openCSV(path, resultHeader)
	if err != nil {
		return nil, err
	}
	return &Results{file: file}, nil
}

// Append writes one verdict row together with the submitted record's metadata.
// The row is rejected if the url is empty or the label is not a known value.
func (r *Results) Append(rec model.Record, v model.Verdict) error {
	if v.URL == "" {
		return fmt.Errorf("refusing to record verdict with empty url")
	}
	if !v.Label.Valid() {
		return fmt.Errorf("refusing to record invalid label %q for %s", v.Label, v.URL)
	}
	return r.file.append([]string{
		v.URL,
		string(v.Label),
		v.ThreatTypesString(),
		rec.DiscoverTime,
		rec.PulledTime,
		model.FormatTime(v.CheckedAt),
		v.Err,
	})
}

// Close flushes and closes the log file.
func (r *Results) Close() error { return r.file.close() }
