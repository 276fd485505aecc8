package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"phishwatch/internal/model"
)

// Timestamp layouts accepted in feed snapshots, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	model.TimeLayout,
	"2006-01-02 15:04:05",
	"02/01/06 15:04:05",
}

// CSVSource fetches a CSV feed snapshot over HTTP. The snapshot must carry a
// header row with a "url" column and a discovery timestamp column; rows that
// cannot be decoded are skipped and counted, never fatal.
type CSVSource struct {
	client HTTPClient
	url    string
	token  string // optional bearer credential, attached as-is
	log    *slog.Logger
}

// NewCSVSource creates a CSVSource reading from the given location.
// token may be empty when the credential is embedded in the URL itself.
func NewCSVSource(client HTTPClient, url, token string, log *slog.Logger) *CSVSource {
	return &CSVSource{client: client, url: url, token: token, log: log}
}

// Fetch downloads and parses the feed snapshot.
func (s *CSVSource) Fetch(ctx context.Context) ([]model.FeedEntry, error) {
	body, err := fetchBody(ctx, s.client, s.url, s.token)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	r := csv.NewReader(body)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrSourceUnavailable, err)
	}

	urlCol, timeCol, idCol := columnIndexes(header)
	if urlCol < 0 {
		return nil, fmt.Errorf("%w: snapshot has no url column", ErrSourceUnavailable)
	}
	if timeCol < 0 {
		return nil, fmt.Errorf("%w: snapshot has no discovery time column", ErrSourceUnavailable)
	}

	var entries []model.FeedEntry
	skipped := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		e, ok := parseRow(row, urlCol, timeCol, idCol)
		if !ok {
			skipped++
			continue
		}
		entries = append(entries, e)
	}

	if skipped > 0 {
		s.log.Warn("skipped malformed feed rows", "count", skipped)
	}
	return entries, nil
}

func columnIndexes(header []string) (urlCol, timeCol, idCol int) {
	urlCol, timeCol, idCol = -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "url":
			urlCol = i
		case "discover_time", "discovered_at", "timestamp":
			timeCol = i
		case "id", "rank":
			idCol = i
		}
	}
	return urlCol, timeCol, idCol
}

func parseRow(row []string, urlCol, timeCol, idCol int) (model.FeedEntry, bool) {
	var e model.FeedEntry
	if urlCol >= len(row) || timeCol >= len(row) {
		return e, false
	}
	e.URL = strings.TrimSpace(row[urlCol])
	if e.URL == "" {
		return e, false
	}
	t, err := parseTimestamp(strings.TrimSpace(row[timeCol]))
	if err != nil {
		return model.FeedEntry{}, false
	}
	e.DiscoveredAt = t
	if idCol >= 0 && idCol < len(row) {
		e.SourceID = strings.TrimSpace(row[idCol])
	}
	return e, true
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func fetchBody(ctx context.Context, client HTTPClient, url, token string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %d", ErrSourceUnavailable, resp.StatusCode)
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxBodySize), resp.Body}, nil
}
