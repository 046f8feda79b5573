// Package trace records what every pipeline stage did during a run and
// persists the resulting RunTrace.
package trace

import (
	"slices"
	"sync"
	"time"

	"github.com/jonathan/daily-brief/internal/types"
)

// Recorder accumulates the RunTrace of one run. Stage records are appended
// when a span ends and are never modified afterwards. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	trace types.RunTrace
	now   func() time.Time
}

// NewRecorder starts a trace in the Idle state.
func NewRecorder(runID, userID, topic string, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		now: now,
		trace: types.RunTrace{
			RunID:     runID,
			UserID:    userID,
			Topic:     topic,
			State:     types.StageIdle,
			StartedAt: now().UTC(),
			Stages:    []types.StageRecord{},
		},
	}
}

// Span is an open stage record.
type Span struct {
	r     *Recorder
	rec   types.StageRecord
	ended bool
}

// Begin transitions the run into stage and opens its record.
func (r *Recorder) Begin(stage types.Stage, countIn int) *Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace.State = stage
	return &Span{
		r: r,
		rec: types.StageRecord{
			Stage:     stage,
			StartedAt: r.now().UTC(),
			CountIn:   countIn,
		},
	}
}

// Error records a recoverable or fatal error against the stage.
func (s *Span) Error(err error) {
	if err == nil {
		return
	}
	s.r.mu.Lock()
	s.rec.Errors = append(s.rec.Errors, err.Error())
	s.r.mu.Unlock()
}

// Degraded flags that the stage used a deterministic fallback.
func (s *Span) Degraded() {
	s.r.mu.Lock()
	s.rec.Degraded = true
	s.r.mu.Unlock()
}

// Calls adds to the stage's capability call count.
func (s *Span) Calls(n int) {
	s.r.mu.Lock()
	s.rec.CapabilityCalls += n
	s.r.mu.Unlock()
}

// End closes the record and appends it to the trace. Later calls are no-ops.
func (s *Span) End(countOut int) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.rec.EndedAt = s.r.now().UTC()
	s.rec.CountOut = countOut
	s.r.trace.Stages = append(s.r.trace.Stages, s.rec)
	s.r.trace.Metrics.CapabilityCalls += s.rec.CapabilityCalls
	if s.rec.Degraded {
		s.r.trace.Metrics.DegradedStages++
	}
}

// Metrics applies fn to the run metrics under the recorder lock.
func (r *Recorder) Metrics(fn func(m *types.Metrics)) {
	r.mu.Lock()
	fn(&r.trace.Metrics)
	r.mu.Unlock()
}

// Scored retains the scored items, rejected ones included.
func (r *Recorder) Scored(items []types.ScoredItem) {
	r.mu.Lock()
	r.trace.Scored = slices.Clone(items)
	r.mu.Unlock()
}

// Expansion retains the expansion items were scored against.
func (r *Recorder) Expansion(e types.TopicExpansion) {
	r.mu.Lock()
	e.Subtopics = slices.Clone(e.Subtopics)
	r.trace.Expansion = &e
	r.mu.Unlock()
}

// Narratives retains the text written for each section.
func (r *Recorder) Narratives(sections []types.BriefSection) {
	out := make([]types.SectionNarrative, len(sections))
	for i, s := range sections {
		out[i] = types.SectionNarrative{Theme: s.Theme, Narrative: s.Narrative, Degraded: s.Degraded}
	}
	r.mu.Lock()
	r.trace.Narratives = out
	r.mu.Unlock()
}

// Finish moves the trace to a terminal state and returns a copy of it.
func (r *Recorder) Finish(state types.Stage, err error) types.RunTrace {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.trace.State.Terminal() {
		r.trace.State = state
		finished := r.now().UTC()
		r.trace.FinishedAt = &finished
		if err != nil {
			r.trace.Error = err.Error()
		}
	}
	return cloneTrace(r.trace)
}

// Snapshot returns a copy of the trace so far.
func (r *Recorder) Snapshot() types.RunTrace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneTrace(r.trace)
}

// State returns the current state.
func (r *Recorder) State() types.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trace.State
}

func cloneTrace(t types.RunTrace) types.RunTrace {
	out := t
	out.Stages = make([]types.StageRecord, len(t.Stages))
	for i, s := range t.Stages {
		s.Errors = slices.Clone(s.Errors)
		out.Stages[i] = s
	}
	out.Scored = slices.Clone(t.Scored)
	out.Narratives = slices.Clone(t.Narratives)
	if t.Expansion != nil {
		e := *t.Expansion
		out.Expansion = &e
	}
	if t.FinishedAt != nil {
		f := *t.FinishedAt
		out.FinishedAt = &f
	}
	return out
}
