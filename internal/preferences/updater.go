package preferences

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/daily-brief/internal/config"
	"github.com/jonathan/daily-brief/internal/llm"
	"github.com/jonathan/daily-brief/internal/logging"
	"github.com/jonathan/daily-brief/internal/prompts"
	"github.com/jonathan/daily-brief/internal/schemas"
	"github.com/jonathan/daily-brief/internal/types"
)

// Delta is everything a run contributes to the profile.
type Delta struct {
	Topic     string
	Subtopics []string
	Scored    []types.ScoredItem
	Overrides types.Overrides
}

// Result is the outcome of Apply.
type Result struct {
	Profile         types.Profile
	TraitsDegraded  bool
	CapabilityCalls int
}

// Updater derives and writes the profile delta of a run.
type Updater struct {
	store      Store
	capability llm.Capability
	cfg        config.PreferencesConfig
	tier       llm.ModelTier
	logger     *zap.Logger
	locks      userLocks
	now        func() time.Time
}

// Option configures an Updater.
type Option func(*Updater)

// WithClock overrides the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(u *Updater) { u.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(u *Updater) { u.logger = logging.OrNop(l) }
}

// NewUpdater creates an Updater. capability may be nil.
func NewUpdater(store Store, capability llm.Capability, cfg config.PreferencesConfig, opts ...Option) *Updater {
	u := &Updater{
		store:      store,
		capability: llm.OrUnavailable(capability),
		cfg:        cfg,
		tier:       llm.TierLite,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Apply reads the stored profile, applies the delta and writes it back as
// one full-record replace. Writes for the same user are serialized.
func (u *Updater) Apply(ctx context.Context, userID string, delta Delta) (Result, error) {
	unlock := u.locks.lock(userID)
	defer unlock()

	current, err := u.store.Get(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	next := delta.Overrides.Apply(current)

	next.RecentTopics = u.pushTopics(next.RecentTopics, delta)
	next.SourceBias = AdjustBias(next.SourceBias, delta.Scored, u.cfg.BiasStep)

	res := Result{}
	if u.cfg.InferTraits {
		traits, calls, err := u.inferTraits(ctx, next, delta)
		res.CapabilityCalls = calls
		if err != nil {
			res.TraitsDegraded = true
			u.logger.Warn("trait inference unavailable, keeping traits",
				zap.String("user_id", userID), zap.Error(err))
		} else {
			next.Traits = traits
		}
	}

	next.Version = current.Version + 1
	next.UpdatedAt = u.now().UTC()

	if err := u.store.Put(ctx, userID, next); err != nil {
		return Result{}, err
	}
	res.Profile = next
	return res, nil
}

// pushTopics inserts subtopics first and the run topic last, so the topic
// ends up most recent.
func (u *Updater) pushTopics(recent []string, delta Delta) []string {
	capacity := u.cfg.RecentTopicsCapacity
	for i := len(delta.Subtopics) - 1; i >= 0; i-- {
		s := delta.Subtopics[i]
		if strings.EqualFold(s, delta.Topic) {
			continue
		}
		recent = PushRecent(recent, s, capacity)
	}
	return PushRecent(recent, delta.Topic, capacity)
}

// AdjustBias moves each observed source's weight toward its acceptance ratio
// in this run: w' = w + step*(ratio - w), clamped to [0,1]. Items cut only by
// the item limit carry no signal and are ignored.
func AdjustBias(bias map[string]float64, scored []types.ScoredItem, step float64) map[string]float64 {
	out := make(map[string]float64, len(bias))
	for k, v := range bias {
		out[k] = v
	}

	type tally struct{ accepted, total int }
	counts := make(map[string]*tally)
	for _, s := range scored {
		if s.Reason == types.ReasonOverLimit || s.Item.Source == "" {
			continue
		}
		t, ok := counts[s.Item.Source]
		if !ok {
			t = &tally{}
			counts[s.Item.Source] = t
		}
		t.total++
		if s.Accepted {
			t.accepted++
		}
	}

	for source, t := range counts {
		old, ok := out[source]
		if !ok {
			old = types.NeutralSourceBias
		}
		ratio := float64(t.accepted) / float64(t.total)
		out[source] = clamp01(old + step*(ratio-old))
	}
	return out
}

type traitUpdate struct {
	Traits []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"traits"`
}

func (u *Updater) inferTraits(ctx context.Context, p types.Profile, delta Delta) (map[string]float64, int, error) {
	prompt, err := prompts.Render("traits.json", "infer-traits", map[string]string{
		"Persona":  p.Persona,
		"Traits":   formatTraits(p.Traits),
		"Topic":    delta.Topic,
		"Accepted": titles(delta.Scored, true),
		"Rejected": titles(delta.Scored, false),
	})
	if err != nil {
		return nil, 0, err
	}

	if !llm.Available(u.capability) {
		return nil, 0, &llm.CapabilityError{Op: "infer_traits"}
	}
	raw, err := u.capability.CompleteJSON(ctx, prompt, u.tier)
	if err != nil {
		return nil, 1, err
	}
	if err := schemas.Validate(schemas.Traits, []byte(raw)); err != nil {
		return nil, 1, fmt.Errorf("trait response rejected: %w", err)
	}

	var update traitUpdate
	if err := json.Unmarshal([]byte(raw), &update); err != nil {
		return nil, 1, fmt.Errorf("failed to parse trait response: %w", err)
	}

	traits := make(map[string]float64, len(p.Traits)+len(update.Traits))
	for k, v := range p.Traits {
		traits[k] = v
	}
	for _, t := range update.Traits {
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name == "" {
			continue
		}
		traits[name] = clamp01(t.Confidence)
	}
	return traits, 1, nil
}

func formatTraits(traits map[string]float64) string {
	if len(traits) == 0 {
		return "none"
	}
	names := make([]string, 0, len(traits))
	for k := range traits {
		names = append(names, k)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s=%.2f", n, traits[n])
	}
	return strings.Join(parts, ", ")
}

func titles(scored []types.ScoredItem, accepted bool) string {
	var sb strings.Builder
	for _, s := range scored {
		if s.Accepted != accepted {
			continue
		}
		fmt.Fprintf(&sb, "- %s (%s)\n", s.Item.Title, s.Item.Source)
	}
	if sb.Len() == 0 {
		return "- none\n"
	}
	return sb.String()
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
