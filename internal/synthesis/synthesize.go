// Package synthesis groups accepted items into themes and writes a narrative
// with citations for each.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/daily-brief/internal/llm"
	"github.com/jonathan/daily-brief/internal/prompts"
	"github.com/jonathan/daily-brief/internal/ranking"
	"github.com/jonathan/daily-brief/internal/types"
)

const defaultConcurrency = 3

var citationRef = regexp.MustCompile(`\[(\d+)\]`)

// Synthesizer turns accepted items into brief sections.
type Synthesizer struct {
	capability  llm.Capability
	tier        llm.ModelTier
	concurrency int
	logger      *zap.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithTier selects the model tier for narratives.
func WithTier(t llm.ModelTier) Option {
	return func(s *Synthesizer) { s.tier = t }
}

// WithConcurrency bounds how many narratives are generated at once.
func WithConcurrency(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSynthesizer creates a Synthesizer. capability may be nil, in which case
// every section uses the templated narrative.
func NewSynthesizer(capability llm.Capability, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		capability:  llm.OrUnavailable(capability),
		tier:        llm.TierStandard,
		concurrency: defaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Input is everything synthesis depends on.
type Input struct {
	Topic     string
	Expansion types.TopicExpansion
	Profile   types.Profile
	Accepted  []types.ScoredItem
}

// Result is the synthesized sections plus accounting.
type Result struct {
	Sections        []types.BriefSection
	CapabilityCalls int
	// Degraded counts sections that used the templated narrative.
	Degraded int
	Errors   []error
}

// Synthesize builds one section per non-empty theme, in theme order.
// Capability failures fall back per section and never fail the call.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) Result {
	themes := Group(in.Accepted, in.Expansion)
	sections := make([]types.BriefSection, len(themes))
	errs := make([]error, len(themes))
	calls := make([]int, len(themes))

	words := sectionWords(in.Profile, len(themes))

	var eg errgroup.Group
	eg.SetLimit(s.concurrency)
	for i, th := range themes {
		eg.Go(func() error {
			narrative, n, err := s.narrative(ctx, in, th, words)
			calls[i] = n
			section := types.BriefSection{
				Theme:     th.Label,
				Items:     th.Items,
				Narrative: narrative,
				KeyPoints: KeyPoints(th.Items),
				Citations: Citations(th.Items),
			}
			if err != nil {
				errs[i] = err
				section.Narrative = FallbackNarrative(th.Items)
				section.Degraded = true
			}
			sections[i] = section
			return nil
		})
	}
	_ = eg.Wait()

	res := Result{Sections: sections}
	for i := range sections {
		res.CapabilityCalls += calls[i]
		if sections[i].Degraded {
			res.Degraded++
		}
		if errs[i] != nil {
			res.Errors = append(res.Errors, errs[i])
			s.logger.Warn("section narrative degraded to fallback",
				zap.String("theme", sections[i].Theme), zap.Error(errs[i]))
		}
	}
	return res
}

// Replay rebuilds sections from a finished run without calling the
// capability. Narratives recorded in the trace are reused; sections without
// one get the templated narrative. Identical inputs give identical sections.
func Replay(trace types.RunTrace, profile types.Profile) []types.BriefSection {
	var expansion types.TopicExpansion
	if trace.Expansion != nil {
		expansion = *trace.Expansion
	} else {
		expansion = types.TopicExpansion{Topic: trace.Topic, Subtopics: []types.Subtopic{{Name: trace.Topic}}}
	}
	var accepted []types.ScoredItem
	for _, it := range trace.Scored {
		if it.Accepted {
			accepted = append(accepted, it)
		}
	}
	ranking.SortByRank(accepted)
	res := NewSynthesizer(nil).Synthesize(context.Background(), Input{
		Topic:     trace.Topic,
		Expansion: expansion,
		Profile:   profile,
		Accepted:  accepted,
	})
	if len(trace.Narratives) != len(res.Sections) {
		return res.Sections
	}
	for i := range res.Sections {
		recorded := trace.Narratives[i]
		if recorded.Theme != res.Sections[i].Theme {
			continue
		}
		res.Sections[i].Narrative = recorded.Narrative
		res.Sections[i].Degraded = recorded.Degraded
	}
	return res.Sections
}

func (s *Synthesizer) narrative(ctx context.Context, in Input, th Theme, words int) (string, int, error) {
	if !llm.Available(s.capability) {
		return "", 0, &llm.CapabilityError{Op: "synthesize"}
	}

	prompt, err := prompts.Render("synthesis.json", "section-narrative", map[string]string{
		"Theme":        th.Label,
		"Topic":        in.Topic,
		"Persona":      in.Profile.Persona,
		"Tone":         string(in.Profile.Tone),
		"Technicality": string(in.Profile.Technicality),
		"Words":        strconv.Itoa(words),
		"Items":        formatItems(th.Items),
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to render synthesis prompt: %w", err)
	}

	text, err := s.capability.Complete(ctx, prompt, s.tier)
	if err != nil {
		return "", 1, err
	}
	text = strings.TrimSpace(text)
	if err := checkCitations(text, len(th.Items)); err != nil {
		return "", 1, &llm.CapabilityError{Op: "synthesize", Cause: err}
	}
	return text, 1, nil
}

// checkCitations rejects narratives citing items that do not exist.
func checkCitations(text string, n int) error {
	if text == "" {
		return errors.New("empty narrative")
	}
	for _, m := range citationRef.FindAllStringSubmatch(text, -1) {
		k, err := strconv.Atoi(m[1])
		if err != nil || k < 1 || k > n {
			return fmt.Errorf("narrative cites unknown item [%s]", m[1])
		}
	}
	return nil
}

func formatItems(items []types.ScoredItem) string {
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "[%d] %s", i+1, it.Item.Title)
		if it.Item.Source != "" {
			fmt.Fprintf(&b, " (%s)", it.Item.Source)
		}
		if it.Item.Body != "" {
			fmt.Fprintf(&b, ": %s", it.Item.Body)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func sectionWords(p types.Profile, sections int) int {
	if sections < 1 {
		sections = 1
	}
	return max(40, p.Length.Words()/sections)
}
