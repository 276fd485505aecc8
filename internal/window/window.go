// Package window implements the time-window filter applied to feed entries.
package window

import (
	"time"

	"phishwatch/internal/model"
)

// Filter returns the entries whose discovery time falls within
// [ref-d, ref], preserving the original order. Both bounds are inclusive.
// Pure and deterministic given its inputs.
func Filter(entries []model.FeedEntry, d time.Duration, ref time.Time) []model.FeedEntry {
	cutoff := ref.Add(-d)
	var kept []model.FeedEntry
	for _, e := range entries {
		if e.DiscoveredAt.Before(cutoff) || e.DiscoveredAt.After(ref) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// Dedup removes entries whose url appeared earlier in the same batch,
// keeping the first occurrence. Order is preserved.
func Dedup(entries []model.FeedEntry) []model.FeedEntry {
	seen := make(map[string]struct{}, len(entries))
	var kept []model.FeedEntry
	for _, e := range entries {
		if _, ok := seen[e.URL]; ok {
			continue
		}
		seen[e.URL] = struct{}{}
		kept = append(kept, e)
	}
	return kept
}
