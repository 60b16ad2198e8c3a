package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritage-maps/gedmap-cli/internal/model"
)

func newTestStore(t *testing.T) *RunStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "family.csv", 42)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Equal(t, 42, run.Places)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "family.csv", got.Source)
	assert.Nil(t, got.Stats)
	assert.Nil(t, got.FinishedAt)
}

func TestCompleteRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "family.csv", 10)
	require.NoError(t, err)

	stats := &model.RunStats{LiveLookups: 3, CacheHits: 6, CacheNegativeHits: 1}
	require.NoError(t, s.CompleteRun(ctx, run.ID, model.RunStatusComplete, 9, 1, stats))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, 9, got.Resolved)
	assert.Equal(t, 1, got.Unresolved)
	require.NotNil(t, got.Stats)
	assert.Equal(t, 3, got.Stats.LiveLookups)
	assert.Equal(t, 6, got.Stats.CacheHits)
	require.NotNil(t, got.FinishedAt)
	assert.False(t, got.FinishedAt.Before(got.StartedAt))
}

func TestCompleteRunNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.CompleteRun(context.Background(), "no-such-id", model.RunStatusComplete, 0, 0, nil)
	assert.Error(t, err)
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "no-such-id")
	assert.Error(t, err)
}

func TestRecentRunsOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, src := range []string{"a.csv", "b.csv", "c.csv"} {
		_, err := s.CreateRun(ctx, src, 1)
		require.NoError(t, err)
	}

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	runs, err = s.RecentRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}
