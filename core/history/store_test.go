package history

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func entry(id, conflictID string, offset time.Duration, outcome model.HistoryOutcome) model.ConflictResolutionHistory {
	return model.ConflictResolutionHistory{
		ID:           id,
		ConflictID:   conflictID,
		ResolutionID: "r-" + id,
		ConflictType: model.ConflictOverloadedTeam,
		Strategy:     model.StrategyReassign,
		AppliedBy:    "dispatcher",
		AppliedAt:    base.Add(offset),
		Outcome:      outcome,
		Metrics:      model.ResolutionMetrics{TimeToResolve: 90 * time.Second, CostSavings: 1.5},
	}
}

func reverted(h model.ConflictResolutionHistory, at time.Time) model.ConflictResolutionHistory {
	h.Outcome = model.OutcomeReverted
	h.RevertedAt = &at
	return h
}

// storeContract exercises the behaviour every backend must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	h1 := entry("h1", "c1", 0, model.OutcomeSuccessful)
	h2 := entry("h2", "c2", time.Minute, model.OutcomeFailed)
	h3 := entry("h3", "c1", 2*time.Minute, model.OutcomeSuccessful)
	for _, h := range []model.ConflictResolutionHistory{h3, h1, h2} {
		require.NoError(t, s.Append(ctx, h))
	}
	require.NoError(t, s.Append(ctx, reverted(h1, base.Add(time.Hour))))

	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"h1", "h2", "h3"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, model.OutcomeReverted, all[0].Outcome)
	require.NotNil(t, all[0].RevertedAt)
	assert.True(t, all[0].RevertedAt.Equal(base.Add(time.Hour)))
	assert.Equal(t, 90*time.Second, all[0].Metrics.TimeToResolve)

	byConflict, err := s.Query(ctx, Query{ConflictID: "c1"})
	require.NoError(t, err)
	assert.Len(t, byConflict, 2)

	successful, err := s.Query(ctx, Query{Outcome: model.OutcomeSuccessful})
	require.NoError(t, err)
	require.Len(t, successful, 1, "the reverted version supersedes the successful one")
	assert.Equal(t, "h3", successful[0].ID)

	window, err := s.Query(ctx, Query{Start: base.Add(30 * time.Second), End: base.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "h2", window[0].ID)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestJSONLStore(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "history.jsonl"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	storeContract(t, s)
}

func TestRotatingJSONLStore(t *testing.T) {
	s, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "nested", "history.jsonl"), 1, 3, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	storeContract(t, s)
}

func TestRotatingJSONLStore_ReadsBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	s, err := NewRotatingJSONLStore(path, 1, 5, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	h := entry("h0", "c0", 0, model.OutcomeSuccessful)
	h.Notes = strings.Repeat("x", 200*1024)
	// Roughly 1.4MB of entries forces at least one rotation at 1MB.
	for i := 0; i < 7; i++ {
		h.ID = fmt.Sprintf("h%d", i)
		require.NoError(t, s.Append(ctx, h))
	}
	backups, err := s.backups()
	require.NoError(t, err)
	assert.NotEmpty(t, backups)

	out, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, out, 7)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore("file:history_contract?mode=memory&cache=shared")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	storeContract(t, s)
}

func TestDialectBind(t *testing.T) {
	q := `SELECT record FROM t WHERE a = ? AND b >= ?`
	assert.Equal(t, q, DialectSQLite.bind(q))
	assert.Equal(t, `SELECT record FROM t WHERE a = $1 AND b >= $2`, DialectPostgres.bind(q))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cases := []struct {
		name string
		cfg  Config
		want any
	}{
		{"default memory", Config{}, &MemoryStore{}},
		{"jsonl", Config{Backend: BackendJSONL, Path: filepath.Join(dir, "h.jsonl")}, &JSONLStore{}},
		{"rotating", Config{Backend: BackendJSONL, Path: filepath.Join(dir, "r.jsonl"), MaxSizeMB: 1}, &RotatingJSONLStore{}},
		{"sqlite", Config{Backend: BackendSQLite, Path: "file:history_open?mode=memory&cache=shared"}, &SQLStore{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Open(ctx, tc.cfg)
			require.NoError(t, err)
			defer func() { _ = s.Close() }()
			assert.IsType(t, tc.want, s)
		})
	}

	_, err := Open(ctx, Config{Backend: BackendPostgres})
	assert.ErrorContains(t, err, "requires dsn")
	_, err = Open(ctx, Config{Backend: "cassandra"})
	assert.ErrorContains(t, err, "unknown backend")
}
