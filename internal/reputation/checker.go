// Package reputation wraps lookups against the Google Safe Browsing v4 blacklist.
package reputation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"phishwatch/internal/model"
)

// ErrRateLimited indicates the reputation API rejected the call with HTTP 429.
// Callers should treat the url as unresolved for this run and back off.
var ErrRateLimited = errors.New("reputation api rate limited")

// DefaultEndpoint is the Safe Browsing v4 lookup endpoint.
const DefaultEndpoint = "https://safebrowsing.googleapis.com/v4/threatMatches:find"

var threatTypes = []string{
	"MALWARE",
	"SOCIAL_ENGINEERING",
	"UNWANTED_SOFTWARE",
	"POTENTIALLY_HARMFUL_APPLICATION",
	"THREAT_TYPE_UNSPECIFIED",
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Checker performs one blacklist lookup per url. Stateless and safe for
// concurrent use.
type Checker struct {
	client   HTTPClient
	endpoint string
	apiKey   string
	now      func() time.Time
}

// New creates a Checker using the default Safe Browsing endpoint.
func New(client HTTPClient, apiKey string) *Checker {
	return &Checker{
		client:   client,
		endpoint: DefaultEndpoint,
		apiKey:   apiKey,
		now:      time.Now,
	}
}

// SetEndpoint overrides the lookup endpoint (useful for testing).
func (c *Checker) SetEndpoint(endpoint string) { c.endpoint = endpoint }

type lookupRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string      `json:"threatTypes"`
		PlatformTypes    []string      `json:"platformTypes"`
		ThreatEntryTypes []string      `json:"threatEntryTypes"`
		ThreatEntries    []threatEntry `json:"threatEntries"`
	} `json:"threatInfo"`
}

type threatEntry struct {
	URL string `json:"url"`
}

type lookupResponse struct {
	Matches []struct {
		ThreatType string      `json:"threatType"`
		Threat     threatEntry `json:"threat"`
	} `json:"matches"`
}

// Check looks up one url and returns its verdict. A match on the blacklist
// yields LabelPhishing with the matched threat types; an empty response
// yields LabelBenign. Transport failures and rate limiting return an error
// and no verdict.
func (c *Checker) Check(ctx context.Context, url string) (model.Verdict, error) {
	body := lookupRequest{}
	body.Client.ClientID = "phishwatch"
	body.Client.ClientVersion = "1.0.0"
	body.ThreatInfo.ThreatTypes = threatTypes
	body.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM"}
	body.ThreatInfo.ThreatEntryTypes = []string{"URL"}
	body.ThreatInfo.ThreatEntries = []threatEntry{{URL: url}}

	payload, err := json.Marshal(body)
	if err != nil {
		return model.Verdict{}, fmt.Errorf("marshal lookup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"?key="+c.apiKey, bytes.NewReader(payload))
	if err != nil {
		return model.Verdict{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.Verdict{}, fmt.Errorf("lookup %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return model.Verdict{}, fmt.Errorf("lookup %s: %w", url, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Verdict{}, fmt.Errorf("lookup %s: unexpected status %d", url, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return model.Verdict{}, fmt.Errorf("read response: %w", err)
	}

	var parsed lookupResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return model.Verdict{}, fmt.Errorf("decode response: %w", err)
	}

	v := model.Verdict{
		URL:       url,
		Label:     model.LabelBenign,
		CheckedAt: c.now().UTC(),
	}
	for _, m := range parsed.Matches {
		if m.Threat.URL != "" && m.Threat.URL != url {
			continue
		}
		v.Label = model.LabelPhishing
		v.ThreatTypes = appendUnique(v.ThreatTypes, m.ThreatType)
	}
	return v, nil
}

func appendUnique(ts []string, t string) []string {
	for _, have := range ts {
		if have == t {
			return ts
		}
	}
	return append(ts, t)
}
