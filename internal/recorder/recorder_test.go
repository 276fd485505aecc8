package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"phishwatch/internal/model"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	rows, err := csv.NewReader(strings.NewReader(string(raw))).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return rows
}

func TestFeedLogAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.csv")
	pulled := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	l, err := NewFeedLog(path)
	if err != nil {
		t.Fatalf("new feed log: %v", err)
	}

	entries := []model.FeedEntry{
		{URL: "http://a.test", DiscoveredAt: pulled.Add(-2 * time.Minute)},
		{URL: "http://b.test", DiscoveredAt: pulled.Add(-time.Minute)},
	}
	for _, e := range entries {
		if err := l.Append(e, pulled); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := [][]string{
		{"url", "discover_time", "pulled_time"},
		{"http://a.test", "2025-06-01T09:58:00Z", "2025-06-01T10:00:00Z"},
		{"http://b.test", "2025-06-01T09:59:00Z", "2025-06-01T10:00:00Z"},
	}
	if diff := cmp.Diff(want, readCSV(t, path)); diff != "" {
		t.Errorf("feed log mismatch (-want +got):\n%s", diff)
	}
}

func TestFeedLogHeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.csv")
	pulled := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		l, err := NewFeedLog(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		e := model.FeedEntry{URL: fmt.Sprintf("http://u%d.test", i), DiscoveredAt: pulled}
		if err := l.Append(e, pulled); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}

	rows := readCSV(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d rows", len(rows))
	}
	if diff := cmp.Diff([]string{"url", "discover_time", "pulled_time"}, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	for _, row := range rows[1:] {
		if row[0] == "url" {
			t.Error("header written twice")
		}
	}
}

func TestFeedLogRejectsEmptyURL(t *testing.T) {
	l, err := NewFeedLog(filepath.Join(t.TempDir(), "feed.csv"))
	if err != nil {
		t.Fatalf("new feed log: %v", err)
	}
	defer func() { _ = l.Close() }()

	if err := l.Append(model.FeedEntry{}, time.Now()); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestResultsAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	checked := time.Date(2025, 6, 1, 10, 1, 0, 0, time.UTC)

	r, err := NewResults(path)
	if err != nil {
		t.Fatalf("new results: %v", err)
	}

	rec := model.Record{
		URL:          "http://a.test",
		DiscoverTime: "2025-06-01T09:58:00Z",
		PulledTime:   "2025-06-01T10:00:00Z",
	}
	v := model.Verdict{
		URL:         "http://a.test",
		Label:       model.LabelPhishing,
		ThreatTypes: []string{"SOCIAL_ENGINEERING", "MALWARE"},
		CheckedAt:   checked,
	}
	if err := r.Append(rec, v); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := [][]string{
		{"url", "label", "matched_threat_types", "discover_time", "pulled_time", "checked_at", "error"},
		{"http://a.test", "phishing", "MALWARE;SOCIAL_ENGINEERING",
			"2025-06-01T09:58:00Z", "2025-06-01T10:00:00Z", "2025-06-01T10:01:00Z", ""},
	}
	if diff := cmp.Diff(want, readCSV(t, path)); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestResultsRejectsInvalidRows(t *testing.T) {
	r, err := NewResults(filepath.Join(t.TempDir(), "results.csv"))
	if err != nil {
		t.Fatalf("new results: %v", err)
	}
	defer func() { _ = r.Close() }()

	if err := r.Append(model.Record{}, model.Verdict{Label: model.LabelBenign}); err == nil {
		t.Error("expected error for empty url")
	}
	if err := r.Append(model.Record{URL: "http://a.test"},
		model.Verdict{URL: "http://a.test", Label: "suspicious"}); err == nil {
		t.Error("expected error for unknown label")
	}
}

func TestResultsConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	r, err := NewResults(path)
	if err != nil {
		t.Fatalf("new results: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := model.Record{URL: fmt.Sprintf("http://u%d.test", i)}
			v := model.Verdict{
				URL:       rec.URL,
				Label:     model.LabelBenign,
				CheckedAt: time.Now(),
			}
			if err := r.Append(rec, v); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Every row must still parse cleanly; interleaved writes would corrupt this.
	rows := readCSV(t, path)
	if len(rows) != n+1 {
		t.Fatalf("expected %d rows, got %d", n+1, len(rows))
	}
	for i, row := range rows[1:] {
		if len(row) != len(resultHeader) {
			t.Errorf("row %d has %d fields, want %d", i, len(row), len(resultHeader))
		}
	}
}
