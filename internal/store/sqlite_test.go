package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/daily-brief/internal/preferences"
	"github.com/jonathan/daily-brief/internal/trace"
	"github.com/jonathan/daily-brief/internal/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "brief.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestProfiles_DefaultThenUpsert(t *testing.T) {
	ctx := context.Background()
	profiles := openTestDB(t).Profiles()

	p, err := profiles.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.NewProfile("alice"), p)

	p.Persona = "engineer"
	p.RecentTopics = []string{"raft"}
	p.Version = 1
	p.UpdatedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, profiles.Put(ctx, "alice", p))

	p.Version = 2
	p.Persona = "researcher"
	require.NoError(t, profiles.Put(ctx, "alice", p))

	got, err := profiles.Get(ctx, "alice")
	require.NoError(t, err)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestProfiles_EmptyUserID(t *testing.T) {
	_, err := openTestDB(t).Profiles().Get(context.Background(), "")
	var serr *preferences.StorageError
	require.ErrorAs(t, err, &serr)
}

func TestProfiles_ClosedDBIsStorageError(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "brief.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.Profiles().Get(context.Background(), "alice")
	var serr *preferences.StorageError
	assert.ErrorAs(t, err, &serr)
}

func TestTraces_AppendLoadAndAppendOnly(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	traces := db.Traces()

	start := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Second)
	tr := types.RunTrace{
		RunID:      "run-1",
		UserID:     "alice",
		Topic:      "raft",
		State:      types.StageDone,
		StartedAt:  start,
		FinishedAt: &end,
		Stages: []types.StageRecord{
			{Stage: types.StageExpandingTopic, StartedAt: start, EndedAt: start.Add(time.Second), CountIn: 1, CountOut: 1, Degraded: true},
			{Stage: types.StageFetching, StartedAt: start.Add(time.Second), EndedAt: end, CountIn: 2, CountOut: 7, Errors: []string{"timeout"}},
		},
		Metrics: types.Metrics{SourcesAttempted: 2, SourcesFailed: 1, ItemsFetched: 7},
	}
	require.NoError(t, traces.Append(ctx, tr))

	got, err := traces.Load(ctx, "run-1")
	require.NoError(t, err)
	if diff := cmp.Diff(tr, got); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}

	err = traces.Append(ctx, tr)
	assert.True(t, errors.Is(err, trace.ErrDuplicateRun), "got %v", err)

	_, err = traces.Load(ctx, "missing")
	assert.ErrorIs(t, err, trace.ErrNotFound)

	ids, err := db.RecentRuns(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, ids)
}
