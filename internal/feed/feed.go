// Package feed handles downloading and parsing of the upstream phishing-URL feed.
package feed

import (
	"context"
	"errors"
	"net/http"

	"phishwatch/internal/model"
)

// ErrSourceUnavailable indicates the upstream feed could not be reached or
// returned an unusable snapshot. Callers should skip the current poll cycle
// and try again on the next one.
var ErrSourceUnavailable = errors.New("feed source unavailable")

// Source fetches the current snapshot of the upstream feed.
// Implementations are stateless across calls.
type Source interface {
	Fetch(ctx context.Context) ([]model.FeedEntry, error)
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const userAgent = "phishwatch/1.0"

// maxBodySize caps how much of a feed snapshot is read (16 MiB).
const maxBodySize = 16 * 1024 * 1024
