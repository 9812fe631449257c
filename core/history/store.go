// Package history persists conflict resolution history.
//
// Stores are append-only. Reverting an entry appends a new version with the
// same ID; Query returns the latest version of every entry.
package history

import (
	"context"
	"sort"
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// Query defines filters for retrieving entries. Zero values match everything.
// Start and End bound AppliedAt inclusively.
type Query struct {
	ConflictID string
	Outcome    model.HistoryOutcome
	Start      time.Time
	End        time.Time
}

// Store persists history entries and supports querying.
type Store interface {
	Append(ctx context.Context, h model.ConflictResolutionHistory) error
	Query(ctx context.Context, q Query) ([]model.ConflictResolutionHistory, error)
	Close() error
}

// Match reports whether h satisfies every filter of q.
func (q Query) Match(h model.ConflictResolutionHistory) bool {
	if q.ConflictID != "" && h.ConflictID != q.ConflictID {
		return false
	}
	if q.Outcome != "" && h.Outcome != q.Outcome {
		return false
	}
	if !q.Start.IsZero() && h.AppliedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && h.AppliedAt.After(q.End) {
		return false
	}
	return true
}

// Latest collapses versions in append order, keeps the last version of each
// ID that matches q and sorts the result by AppliedAt then ID.
func Latest(versions []model.ConflictResolutionHistory, q Query) []model.ConflictResolutionHistory {
	last := make(map[string]model.ConflictResolutionHistory, len(versions))
	for _, h := range versions {
		last[h.ID] = h
	}
	out := make([]model.ConflictResolutionHistory, 0, len(last))
	for _, h := range last {
		if q.Match(h) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppliedAt.Equal(out[j].AppliedAt) {
			return out[i].AppliedAt.Before(out[j].AppliedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
