package feed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"phishwatch/internal/model"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
}

func (m *mockTransport) Do(_ *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCSVFetch(t *testing.T) {
	snapshot := loadFixture(t, "../../testdata/feed_sample.csv")

	tests := []struct {
		name      string
		transport *mockTransport
		want      []model.FeedEntry
		wantErr   bool
	}{
		{
			name:      "successful fetch skips malformed rows",
			transport: &mockTransport{body: snapshot, statusCode: 200},
			want: []model.FeedEntry{
				{
					URL:          "http://phish-one.test/login",
					DiscoveredAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
					SourceID:     "101",
				},
				{
					URL:          "http://phish-two.test/verify",
					DiscoveredAt: time.Date(2025, 6, 1, 10, 2, 0, 0, time.UTC),
					SourceID:     "102",
				},
				{
					URL:          "http://phish-three.test/account",
					DiscoveredAt: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
					SourceID:     "105",
				},
			},
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "not found", statusCode: 404},
			wantErr:   true,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   true,
		},
		{
			name:      "snapshot without url column",
			transport: &mockTransport{body: "host,time\na.test,2025-06-01T10:00:00Z\n", statusCode: 200},
			wantErr:   true,
		},
		{
			name:      "snapshot without time column",
			transport: &mockTransport{body: "url,id\nhttp://a.test,1\n", statusCode: 200},
			wantErr:   true,
		},
		{
			name:      "empty body",
			transport: &mockTransport{body: "", statusCode: 200},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewCSVSource(tt.transport, "https://feed.example.test/feed.csv", "", discardLogger())
			got, err := s.Fetch(context.Background())

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrSourceUnavailable) {
					t.Errorf("expected ErrSourceUnavailable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("entries mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCSVFetchAttachesCredential(t *testing.T) {
	var gotAuth string
	transport := &funcTransport{fn: func(req *http.Request) (*http.Response, error) {
		gotAuth = req.Header.Get("Authorization")
		return &http.Response{
			StatusCode: 200,
			Body:       io.NopCloser(bytes.NewBufferString("url,discover_time\n")),
		}, nil
	}}

	s := NewCSVSource(transport, "https://feed.example.test/feed.csv", "secret-token", discardLogger())
	if _, err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff("Bearer secret-token", gotAuth); diff != "" {
		t.Errorf("authorization header mismatch (-want +got):\n%s", diff)
	}
}

type funcTransport struct {
	fn func(req *http.Request) (*http.Response, error)
}

func (f *funcTransport) Do(req *http.Request) (*http.Response, error) { return f.fn(req) }

func TestParseTimestampLayouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-06-01T10:00:00Z", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-06-01 10:00:00", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"01/06/25 10:00:00", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := parseTimestamp(tt.in)
		if err != nil {
			t.Errorf("parseTimestamp(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := parseTimestamp("yesterday"); err == nil {
		t.Error("expected error for unrecognized timestamp")
	}
}
