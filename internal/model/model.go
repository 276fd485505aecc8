// Package model defines the domain types used across the application.
package model

import (
	"sort"
	"strings"
	"time"
)

// TimeLayout is the timestamp format used in CSV artifacts and on the wire.
const TimeLayout = "2006-01-02T15:04:05Z"

// FormatTime renders t in the shared timestamp layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// FeedEntry is one phishing-URL record as published by the upstream feed.
// Immutable once fetched.
type FeedEntry struct {
	URL          string
	DiscoveredAt time.Time
	SourceID     string // optional id or rank column from the feed, may be empty
}

// Record is one URL submitted for evaluation, as it travels on the wire
// between the puller and the ingestion service.
//
// The JSON field names match the CSV column contract that downstream
// tooling reads; do not rename them.
type Record struct {
	URL          string `json:"url"`
	DiscoverTime string `json:"discover_time"`
	PulledTime   string `json:"pulled_time"`
}

// IngestRequest is one batch of records, all urls from a single poll tick.
type IngestRequest []Record

// Label is the reputation verdict assigned to a URL.
type Label string

// Possible verdict labels.
const (
	LabelPhishing Label = "phishing"
	LabelBenign   Label = "benign"
	LabelUnknown  Label = "unknown"
)

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	switch l {
	case LabelPhishing, LabelBenign, LabelUnknown:
		return true
	}
	return false
}

// Verdict is the outcome of one reputation lookup for one URL.
type Verdict struct {
	URL         string    `json:"url"`
	Label       Label     `json:"label"`
	ThreatTypes []string  `json:"matched_threat_types,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
	Err         string    `json:"error,omitempty"`
}

// ThreatTypesString renders the matched threat types as a stable
// semicolon-separated list for CSV output.
func (v Verdict) ThreatTypesString() string {
	if len(v.ThreatTypes) == 0 {
		return ""
	}
	ts := append([]string(nil), v.ThreatTypes...)
	sort.Strings(ts)
	return strings.Join(ts, ";")
}
