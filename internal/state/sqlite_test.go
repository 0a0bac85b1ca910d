package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/wellplan/internal/testutil"
	"github.com/leapstack-labs/wellplan/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_OpenMigrate(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// migrating twice is a no-op
	require.NoError(t, store.Migrate())
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	require.NoError(t, store.Migrate())
	require.NoError(t, store.RecordRun(&core.Run{Protocol: "assembly", ParamsDigest: "p", Status: RunStatusCompleted}))
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore(nil)
	require.NoError(t, reopened.Open(path))
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.Migrate())

	runs, err := reopened.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "assembly", runs[0].Protocol)
	assert.Equal(t, path, reopened.Path())
}

func TestSQLiteStore_RecordAndGet(t *testing.T) {
	store := setupTestStore(t)

	run := &core.Run{
		Protocol:     "transform",
		ParamsDigest: "abc",
		PlanDigest:   "def",
		Instructions: 42,
		Status:       RunStatusFailed,
		Error:        "deck exhausted",
	}
	require.NoError(t, store.RecordRun(run))
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())

	got, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "transform", got.Protocol)
	assert.Equal(t, "abc", got.ParamsDigest)
	assert.Equal(t, "def", got.PlanDigest)
	assert.Equal(t, 42, got.Instructions)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "deck exhausted", got.Error)
	assert.WithinDuration(t, run.CreatedAt, got.CreatedAt, time.Second)

	_, err = store.GetRun("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: missing")
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store := setupTestStore(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, protocol := range []string{"assembly", "transform", "glycerol"} {
		require.NoError(t, store.RecordRun(&core.Run{
			Protocol:     protocol,
			ParamsDigest: "p",
			Status:       RunStatusCompleted,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := store.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "glycerol", runs[0].Protocol)
	assert.Equal(t, "transform", runs[1].Protocol)
	assert.Empty(t, runs[0].Error)
}

func TestSQLiteStore_RunsWithParams(t *testing.T) {
	store := setupTestStore(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	record := func(params, plan string, offset int) {
		require.NoError(t, store.RecordRun(&core.Run{
			Protocol:     "assembly",
			ParamsDigest: params,
			PlanDigest:   plan,
			Status:       RunStatusCompleted,
			CreatedAt:    base.Add(time.Duration(offset) * time.Second),
		}))
	}
	record("p1", "x", 0)
	record("p2", "y", 1)
	record("p1", "x", 2)

	runs, err := store.RunsWithParams("p1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].CreatedAt.Before(runs[1].CreatedAt))
	assert.True(t, Reproducible(runs))

	none, err := store.RunsWithParams("p3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReproducible(t *testing.T) {
	tests := []struct {
		name string
		runs []*Run
		want bool
	}{
		{"empty", nil, true},
		{"same plan", []*Run{{PlanDigest: "a", Status: RunStatusCompleted}, {PlanDigest: "a", Status: RunStatusCompleted}}, true},
		{"different plan", []*Run{{PlanDigest: "a", Status: RunStatusCompleted}, {PlanDigest: "b", Status: RunStatusCompleted}}, false},
		{"failed runs ignored", []*Run{{PlanDigest: "a", Status: RunStatusCompleted}, {Status: RunStatusFailed}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reproducible(tt.runs))
		})
	}
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)

	assert.ErrorIs(t, store.Migrate(), core.ErrStoreNotOpen)
	assert.ErrorIs(t, store.RecordRun(&core.Run{}), core.ErrStoreNotOpen)
	_, err := store.GetRun("x")
	assert.ErrorIs(t, err, core.ErrStoreNotOpen)
	_, err = store.ListRuns(1)
	assert.ErrorIs(t, err, core.ErrStoreNotOpen)
	_, err = store.RunsWithParams("x")
	assert.ErrorIs(t, err, core.ErrStoreNotOpen)
	_, err = store.GetMigrationVersion()
	assert.ErrorIs(t, err, core.ErrStoreNotOpen)
	assert.NoError(t, store.Close())
}
