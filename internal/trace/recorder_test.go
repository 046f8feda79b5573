package trace

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/daily-brief/internal/types"
)

type tick struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tick) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newClock() *tick {
	return &tick{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestRecorder_StageLifecycle(t *testing.T) {
	r := NewRecorder("run-1", "alice", "raft", newClock().now)
	assert.Equal(t, types.StageIdle, r.State())

	span := r.Begin(types.StageExpandingTopic, 1)
	assert.Equal(t, types.StageExpandingTopic, r.State())
	span.Calls(1)
	span.Degraded()
	span.Error(errors.New("capability down"))
	span.End(1)
	span.End(99)

	fetch := r.Begin(types.StageFetching, 3)
	fetch.End(10)

	r.Metrics(func(m *types.Metrics) {
		m.SourcesAttempted = 3
		m.ItemsFetched = 10
	})

	got := r.Finish(types.StageDone, nil)
	require.Len(t, got.Stages, 2)
	assert.Equal(t, types.StageDone, got.State)
	assert.NotNil(t, got.FinishedAt)

	exp := got.Stages[0]
	assert.Equal(t, 1, exp.CountOut, "second End is ignored")
	assert.True(t, exp.Degraded)
	assert.Equal(t, []string{"capability down"}, exp.Errors)
	assert.True(t, exp.EndedAt.After(exp.StartedAt))

	assert.Equal(t, 1, got.Metrics.CapabilityCalls)
	assert.Equal(t, 1, got.Metrics.DegradedStages)
	assert.Equal(t, 3, got.Metrics.SourcesAttempted)
}

func TestRecorder_FinishIsTerminal(t *testing.T) {
	r := NewRecorder("run-2", "bob", "t", newClock().now)
	r.Begin(types.StageScoring, 0)

	failed := r.Finish(types.StageFailed, errors.New("store down"))
	again := r.Finish(types.StageDone, nil)

	assert.Equal(t, types.StageFailed, failed.State)
	assert.Equal(t, types.StageFailed, again.State)
	assert.Equal(t, "store down", again.Error)
}

func TestRecorder_SnapshotIsACopy(t *testing.T) {
	r := NewRecorder("run-3", "carol", "t", newClock().now)
	s := r.Begin(types.StageFetching, 1)
	s.Error(errors.New("timeout"))
	s.End(0)

	snap := r.Snapshot()
	snap.Stages[0].Errors[0] = "mutated"
	snap.Stages = append(snap.Stages, types.StageRecord{})

	again := r.Snapshot()
	assert.Len(t, again.Stages, 1)
	assert.Equal(t, "timeout", again.Stages[0].Errors[0])
}

func TestRecorder_Narratives(t *testing.T) {
	r := NewRecorder("run-4", "dave", "t", newClock().now)
	r.Narratives([]types.BriefSection{
		{Theme: "consensus", Narrative: "Raft keeps winning [1].", Items: []types.ScoredItem{{Score: 0.9}}},
		{Theme: "storage", Narrative: "- LSM trees (A) [1]", Degraded: true},
	})

	snap := r.Snapshot()
	assert.Equal(t, []types.SectionNarrative{
		{Theme: "consensus", Narrative: "Raft keeps winning [1]."},
		{Theme: "storage", Narrative: "- LSM trees (A) [1]", Degraded: true},
	}, snap.Narratives)

	snap.Narratives[0].Narrative = "mutated"
	assert.Equal(t, "Raft keeps winning [1].", r.Snapshot().Narratives[0].Narrative)
}

func TestRecorder_ConcurrentSpans(t *testing.T) {
	r := NewRecorder("run-4", "dave", "t", newClock().now)
	span := r.Begin(types.StageSynthesizing, 8)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			span.Calls(1)
			span.Error(errors.New("x"))
		}()
	}
	wg.Wait()
	span.End(8)

	got := r.Snapshot()
	assert.Equal(t, 8, got.Stages[0].CapabilityCalls)
	assert.Len(t, got.Stages[0].Errors, 8)
}

func TestFileSink_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	sink, err := NewFileSink(filepath.Join(t.TempDir(), "nested", "traces.jsonl"))
	require.NoError(t, err)

	_, err = sink.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	first := NewRecorder("run-a", "u", "t1", newClock().now).Finish(types.StageDone, nil)
	second := NewRecorder("run-b", "u", "t2", newClock().now).Finish(types.StageFailed, errors.New("boom"))
	require.NoError(t, sink.Append(ctx, first))
	require.NoError(t, sink.Append(ctx, second))

	got, err := sink.Load(ctx, "run-b")
	require.NoError(t, err)
	assert.Equal(t, "t2", got.Topic)
	assert.Equal(t, "boom", got.Error)

	err = sink.Append(ctx, first)
	assert.ErrorIs(t, err, ErrDuplicateRun, "traces are append-only")
}
