package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/mmcdole/gofeed"

	"phishwatch/internal/model"
)

// RSSSource fetches a feed published as RSS or Atom. Each item's link is the
// suspected URL and its published time is the discovery time. Items without a
// link or a parsable published time are skipped and counted.
type RSSSource struct {
	client HTTPClient
	url    string
	token  string
	log    *slog.Logger
}

// NewRSSSource creates an RSSSource reading from the given location.
func NewRSSSource(client HTTPClient, url, token string, log *slog.Logger) *RSSSource {
	return &RSSSource{client: client, url: url, token: token, log: log}
}

// Fetch downloads and parses the feed snapshot.
func (s *RSSSource) Fetch(ctx context.Context) ([]model.FeedEntry, error) {
	body, err := fetchBody(ctx, s.client, s.url, s.token)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrSourceUnavailable, err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed: %v", ErrSourceUnavailable, err)
	}

	var entries []model.FeedEntry
	skipped := 0
	for _, item := range parsed.Items {
		if item.Link == "" || item.PublishedParsed == nil {
			skipped++
			continue
		}
		entries = append(entries, model.FeedEntry{
			URL:          item.Link,
			DiscoveredAt: item.PublishedParsed.UTC(),
			SourceID:     item.GUID,
		})
	}

	if skipped > 0 {
		s.log.Warn("skipped malformed feed items", "count", skipped)
	}
	return entries, nil
}
