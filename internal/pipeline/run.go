// Package pipeline orchestrates one brief run: expand, resolve, fetch, score,
// synthesize, compose, update preferences and publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/daily-brief/internal/compose"
	"github.com/jonathan/daily-brief/internal/config"
	"github.com/jonathan/daily-brief/internal/expansion"
	"github.com/jonathan/daily-brief/internal/fetch"
	"github.com/jonathan/daily-brief/internal/pipeline/steps"
	"github.com/jonathan/daily-brief/internal/preferences"
	"github.com/jonathan/daily-brief/internal/publish"
	"github.com/jonathan/daily-brief/internal/ranking"
	"github.com/jonathan/daily-brief/internal/sources"
	"github.com/jonathan/daily-brief/internal/synthesis"
	"github.com/jonathan/daily-brief/internal/trace"
	"github.com/jonathan/daily-brief/internal/types"
)

// ErrEmptyTopic is returned for runs without a topic.
var ErrEmptyTopic = errors.New("topic is required")

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Stage    types.Stage `json:"stage"`
	Category string      `json:"category"`
	Message  string      `json:"message"`
	RunID    string      `json:"run_id,omitempty"`
	Content  any         `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// Fetcher resolves fetch requests. *fetch.Gateway implements it.
type Fetcher interface {
	FetchAll(ctx context.Context, reqs []types.FetchRequest) []fetch.Outcome
}

// Dependencies are the collaborators of an Orchestrator. Store and Fetcher
// are required; everything else has a working default.
type Dependencies struct {
	Store       preferences.Store
	Fetcher     Fetcher
	Expander    *expansion.Expander
	Synthesizer *synthesis.Synthesizer
	Updater     *preferences.Updater
	Publisher   publish.Publisher
	Traces      trace.Sink
	Logger      *zap.Logger
	Clock       func() time.Time
	NewRunID    func() string
}

// Orchestrator runs the pipeline. It holds no per-run state and is safe for
// concurrent runs.
type Orchestrator struct {
	cfg  *config.Config
	deps Dependencies
}

// New creates an Orchestrator, filling defaults for optional dependencies.
func New(cfg *config.Config, deps Dependencies) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Store == nil {
		return nil, errors.New("pipeline requires a preference store")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("pipeline requires a fetcher")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewRunID == nil {
		deps.NewRunID = func() string { return uuid.NewString() }
	}
	if deps.Expander == nil {
		deps.Expander = expansion.NewExpander(nil, cfg.Expansion.MaxSubtopics, deps.Logger)
	}
	if deps.Synthesizer == nil {
		deps.Synthesizer = synthesis.NewSynthesizer(nil, synthesis.WithLogger(deps.Logger))
	}
	if deps.Updater == nil {
		deps.Updater = preferences.NewUpdater(deps.Store, nil, cfg.Preferences,
			preferences.WithClock(deps.Clock), preferences.WithLogger(deps.Logger))
	}
	if deps.Publisher == nil {
		deps.Publisher = publish.Discard{}
	}
	if deps.Traces == nil {
		deps.Traces = trace.Discard{}
	}
	return &Orchestrator{cfg: cfg, deps: deps}, nil
}

// Request is one run.
type Request struct {
	UserID     string
	Topic      string
	Overrides  types.Overrides
	OnProgress ProgressCallback
}

// Result is a finished run.
type Result struct {
	Brief   types.Brief      `json:"brief"`
	Trace   types.RunTrace   `json:"trace"`
	Profile types.Profile    `json:"profile"`
	Publish *publish.Receipt `json:"publish,omitempty"`
}

// RunError is a fatal run failure. Trace is the partial trace at the time
// of failure; the stored profile is untouched.
type RunError struct {
	State types.Stage
	Cause error
	Trace types.RunTrace
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed during %s: %v", e.Trace.RunID, e.State, e.Cause)
}

func (e *RunError) Unwrap() error {
	return e.Cause
}

// run carries the state of one execution.
type run struct {
	o         *Orchestrator
	req       Request
	rec       *trace.Recorder
	logger    *zap.Logger
	startedAt time.Time
}

// Run executes the pipeline for one request. Recoverable failures (a source
// failing, the reasoning capability being down, malformed items) are
// absorbed into the trace. Fatal failures return a *RunError.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	req.UserID = strings.TrimSpace(req.UserID)

	runID := o.deps.NewRunID()
	r := &run{
		o:         o,
		req:       req,
		rec:       trace.NewRecorder(runID, req.UserID, req.Topic, o.deps.Clock),
		logger:    o.deps.Logger.With(zap.String("run_id", runID), zap.String("user_id", req.UserID)),
		startedAt: o.deps.Clock().UTC(),
	}
	return r.execute(ctx)
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	o := r.o
	r.logger.Info("run started", zap.String("topic", r.req.Topic))

	// Idle: read and snapshot the profile.
	if r.req.Topic == "" {
		return nil, r.fail(ctx, types.StageIdle, ErrEmptyTopic)
	}
	if r.req.UserID == "" {
		return nil, r.fail(ctx, types.StageIdle, preferences.ErrEmptyUserID)
	}
	profile, err := o.deps.Store.Get(ctx, r.req.UserID)
	if err != nil {
		return nil, r.fail(ctx, types.StageIdle, err)
	}
	snapshot := r.req.Overrides.Apply(profile).Clone()

	// ExpandingTopic
	if err := r.enter(ctx, types.StageExpandingTopic); err != nil {
		return nil, err
	}
	span := r.rec.Begin(types.StageExpandingTopic, 1)
	exp := o.deps.Expander.Expand(ctx, r.req.Topic, snapshot)
	span.Calls(exp.CapabilityCalls)
	if exp.Err != nil {
		span.Error(exp.Err)
		span.Degraded()
	}
	span.End(len(exp.Expansion.Subtopics))
	r.rec.Expansion(exp.Expansion)
	r.progress(types.StageExpandingTopic, fmt.Sprintf("%d subtopics", len(exp.Expansion.Subtopics)), exp.Expansion)

	// ResolvingSources
	if err := r.enter(ctx, types.StageResolvingSources); err != nil {
		return nil, err
	}
	span = r.rec.Begin(types.StageResolvingSources, len(exp.Expansion.Subtopics))
	reqs := sources.Resolve(exp.Expansion, o.cfg.Sources)
	span.End(len(reqs))
	r.rec.Metrics(func(m *types.Metrics) { m.SourcesAttempted = len(reqs) })
	r.progress(types.StageResolvingSources, fmt.Sprintf("%d fetch requests", len(reqs)), nil)

	// Fetching
	if err := r.enter(ctx, types.StageFetching); err != nil {
		return nil, err
	}
	items := r.fetch(ctx, reqs)

	// Scoring
	if err := r.enter(ctx, types.StageScoring); err != nil {
		return nil, err
	}
	span = r.rec.Begin(types.StageScoring, len(items))
	ranked := ranking.Rank(items, snapshot, ranking.TopicContext{Expansion: exp.Expansion, Reference: r.startedAt}, o.cfg.Scoring)
	span.End(len(ranked.Accepted))
	r.rec.Scored(ranked.All)
	r.rec.Metrics(func(m *types.Metrics) {
		m.ItemsAccepted = len(ranked.Accepted)
		m.ItemsRejected = ranked.Rejected()
	})
	r.progress(types.StageScoring, fmt.Sprintf("%d accepted, %d rejected", len(ranked.Accepted), ranked.Rejected()), nil)

	// Synthesizing
	if err := r.enter(ctx, types.StageSynthesizing); err != nil {
		return nil, err
	}
	span = r.rec.Begin(types.StageSynthesizing, len(ranked.Accepted))
	syn := o.deps.Synthesizer.Synthesize(ctx, synthesis.Input{
		Topic:     r.req.Topic,
		Expansion: exp.Expansion,
		Profile:   snapshot,
		Accepted:  ranked.Accepted,
	})
	r.rec.Narratives(syn.Sections)
	span.Calls(syn.CapabilityCalls)
	for _, e := range syn.Errors {
		span.Error(e)
	}
	if syn.Degraded > 0 {
		span.Degraded()
	}
	span.End(len(syn.Sections))
	r.progress(types.StageSynthesizing, fmt.Sprintf("%d sections", len(syn.Sections)), nil)

	// Composing
	if err := r.enter(ctx, types.StageComposing); err != nil {
		return nil, err
	}
	span = r.rec.Begin(types.StageComposing, len(syn.Sections))
	brief := compose.Compose(compose.Input{
		RunID:       r.rec.Snapshot().RunID,
		Topic:       r.req.Topic,
		Sections:    syn.Sections,
		Snapshot:    snapshot,
		GeneratedAt: o.deps.Clock(),
	})
	span.End(brief.WordCount)
	r.progress(types.StageComposing, fmt.Sprintf("%d words", brief.WordCount), nil)

	// UpdatingPreferences
	if err := r.enter(ctx, types.StageUpdatingPreferences); err != nil {
		return nil, err
	}
	span = r.rec.Begin(types.StageUpdatingPreferences, len(ranked.All))
	subtopics := make([]string, len(exp.Expansion.Subtopics))
	for i, s := range exp.Expansion.Subtopics {
		subtopics[i] = s.Name
	}
	upd, err := o.deps.Updater.Apply(ctx, r.req.UserID, preferences.Delta{
		Topic:     r.req.Topic,
		Subtopics: subtopics,
		Scored:    ranked.All,
		Overrides: r.req.Overrides,
	})
	span.Calls(upd.CapabilityCalls)
	if err != nil {
		span.Error(err)
		span.End(0)
		return nil, r.fail(ctx, types.StageUpdatingPreferences, err)
	}
	if upd.TraitsDegraded {
		span.Degraded()
	}
	span.End(1)
	r.progress(types.StageUpdatingPreferences, fmt.Sprintf("profile v%d", upd.Profile.Version), nil)

	// Publishing. The profile is already written, so nothing here can fail the run.
	if err := steps.ValidateTransition(r.rec.State(), types.StagePublishing); err != nil {
		return nil, r.fail(ctx, r.rec.State(), err)
	}
	r.progressStart(types.StagePublishing)
	span = r.rec.Begin(types.StagePublishing, 1)
	var receipt *publish.Receipt
	if rc, err := o.deps.Publisher.Publish(context.WithoutCancel(ctx), brief); err != nil {
		span.Error(err)
		r.logger.Warn("publishing failed", zap.Error(err))
		span.End(0)
	} else {
		if len(rc.Files) > 0 {
			receipt = &rc
		}
		span.End(len(rc.Files))
	}

	final := r.rec.Finish(types.StageDone, nil)
	r.persist(ctx, final)
	r.progress(types.StageDone, "brief ready", brief)
	r.logger.Info("run finished",
		zap.Int("items_fetched", final.Metrics.ItemsFetched),
		zap.Int("items_accepted", final.Metrics.ItemsAccepted),
		zap.Int("sources_failed", final.Metrics.SourcesFailed),
		zap.Int("degraded_stages", final.Metrics.DegradedStages))

	return &Result{Brief: brief, Trace: final, Profile: upd.Profile, Publish: receipt}, nil
}

// fetch runs the Fetching stage. Failed requests are recorded and skipped;
// malformed entries are counted and dropped.
func (r *run) fetch(ctx context.Context, reqs []types.FetchRequest) []types.RawItem {
	span := r.rec.Begin(types.StageFetching, len(reqs))
	outcomes := r.o.deps.Fetcher.FetchAll(ctx, reqs)

	var items []types.RawItem
	failed, malformed := 0, 0
	for _, out := range outcomes {
		malformed += len(out.Malformed)
		if out.Err != nil {
			failed++
			span.Error(out.Err)
			r.logger.Warn("source failed",
				zap.String("source_id", out.Request.SourceID),
				zap.String("kind", string(fetch.KindOf(out.Err))),
				zap.Error(out.Err))
			continue
		}
		items = append(items, out.Items...)
	}
	span.End(len(items))
	r.rec.Metrics(func(m *types.Metrics) {
		m.SourcesFailed = failed
		m.ItemsFetched = len(items)
		m.ItemsMalformed = malformed
	})
	r.progress(types.StageFetching, fmt.Sprintf("%d items from %d/%d sources", len(items), len(reqs)-failed, len(reqs)), nil)
	return items
}

// enter checks for cancellation at a stage boundary and validates the
// transition. The recorder moves into the stage when its span begins.
func (r *run) enter(ctx context.Context, stage types.Stage) error {
	from := r.rec.State()
	if err := ctx.Err(); err != nil {
		return r.fail(ctx, from, fmt.Errorf("run cancelled before %s: %w", stage, err))
	}
	if err := steps.ValidateTransition(from, stage); err != nil {
		return r.fail(ctx, from, err)
	}
	r.progressStart(stage)
	return nil
}

// fail finalizes the trace as Failed and persists it.
func (r *run) fail(ctx context.Context, state types.Stage, cause error) error {
	final := r.rec.Finish(types.StageFailed, cause)
	r.persist(ctx, final)
	r.logger.Error("run failed", zap.String("stage", string(state)), zap.Error(cause))
	r.progress(types.StageFailed, cause.Error(), nil)
	return &RunError{State: state, Cause: cause, Trace: final}
}

// persist appends the trace to the sink. Sink failures are logged only.
func (r *run) persist(ctx context.Context, t types.RunTrace) {
	if err := r.o.deps.Traces.Append(context.WithoutCancel(ctx), t); err != nil {
		r.logger.Warn("failed to persist run trace", zap.Error(err))
	}
}

func (r *run) progressStart(stage types.Stage) {
	r.progress(stage, steps.StageRegistry[stage].Description, nil)
}

// progress calls the progress callback if configured
func (r *run) progress(stage types.Stage, message string, content any) {
	if r.req.OnProgress == nil {
		return
	}
	r.req.OnProgress(ProgressEvent{
		Stage:    stage,
		Category: steps.Category(stage),
		Message:  message,
		RunID:    r.rec.Snapshot().RunID,
		Content:  content,
	})
}
