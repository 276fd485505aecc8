// Package ingest implements the HTTP client that delivers poll batches to the
// ingestion service.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"phishwatch/internal/model"
)

// ErrServiceUnreachable indicates the batch could not be delivered to the
// ingestion service after the configured retries.
var ErrServiceUnreachable = errors.New("ingestion service unreachable")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client pushes IngestRequest batches to the service's /ingest-urls route.
type Client struct {
	client   HTTPClient
	endpoint string
	retries  uint64
	backoff  time.Duration
}

// New creates a Client pointed at the given ingestion endpoint.
func New(client HTTPClient, endpoint string) *Client {
	return &Client{
		client:   client,
		endpoint: endpoint,
		retries:  2,
		backoff:  2 * time.Second,
	}
}

// Push delivers one batch and returns the per-url verdicts the service
// responded with. Transient delivery failures are retried a small, bounded
// number of times within the call; after that ErrServiceUnreachable is
// returned and the caller decides what to do with the batch.
func (c *Client) Push(ctx context.Context, batch model.IngestRequest) ([]model.Verdict, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	var verdicts []model.Verdict
	backoff := retry.WithMaxRetries(c.retries, retry.NewConstant(c.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		vs, err := c.pushOnce(ctx, payload)
		if err != nil {
			return retry.RetryableError(err)
		}
		verdicts = vs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnreachable, err)
	}
	return verdicts, nil
}

func (c *Client) pushOnce(ctx context.Context, payload []byte) ([]model.Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post batch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var verdicts []model.Verdict
	if err := json.Unmarshal(raw, &verdicts); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return verdicts, nil
}
