// Package expansion turns a run topic into subtopics and search keywords.
package expansion

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/daily-brief/internal/llm"
	"github.com/jonathan/daily-brief/internal/prompts"
	"github.com/jonathan/daily-brief/internal/schemas"
	"github.com/jonathan/daily-brief/internal/textutil"
	"github.com/jonathan/daily-brief/internal/types"
)

const maxKeywordsPerSubtopic = 8

// Expander expands topics through the reasoning capability and falls back to
// a deterministic expansion whenever the capability fails.
type Expander struct {
	capability   llm.Capability
	maxSubtopics int
	tier         llm.ModelTier
	logger       *zap.Logger
}

// NewExpander creates an Expander. capability may be nil.
func NewExpander(capability llm.Capability, maxSubtopics int, logger *zap.Logger) *Expander {
	if maxSubtopics < 1 {
		maxSubtopics = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{
		capability:   llm.OrUnavailable(capability),
		maxSubtopics: maxSubtopics,
		tier:         llm.TierStandard,
		logger:       logger,
	}
}

// Result carries the expansion plus what it cost.
type Result struct {
	Expansion       types.TopicExpansion
	CapabilityCalls int
	// Err is the capability failure that triggered the fallback, if any.
	Err error
}

// Expand never fails: any capability error yields the fallback expansion.
func (e *Expander) Expand(ctx context.Context, topic string, profile types.Profile) Result {
	topic = strings.TrimSpace(topic)

	calls := 0
	if llm.Available(e.capability) {
		calls = 1
	}
	subtopics, err := e.expandWithCapability(ctx, topic, profile)
	if err != nil {
		e.logger.Warn("topic expansion degraded to fallback", zap.String("topic", topic), zap.Error(err))
		return Result{Expansion: Fallback(topic), CapabilityCalls: calls, Err: err}
	}

	subtopics = biasTowardInterests(subtopics, profile)
	return Result{
		Expansion:       types.TopicExpansion{Topic: topic, Subtopics: normalize(topic, subtopics, e.maxSubtopics)},
		CapabilityCalls: calls,
	}
}

// Fallback is the deterministic expansion: the topic is the only subtopic and
// its keywords are the full phrase followed by its content words.
func Fallback(topic string) types.TopicExpansion {
	topic = strings.TrimSpace(topic)
	return types.TopicExpansion{
		Topic:     topic,
		Subtopics: []types.Subtopic{{Name: topic, Keywords: fallbackKeywords(topic)}},
		Fallback:  true,
	}
}

func fallbackKeywords(phrase string) []string {
	kws := []string{strings.ToLower(strings.TrimSpace(phrase))}
	tokens := textutil.ContentTokens(phrase)
	if len(tokens) > 1 {
		kws = append(kws, tokens...)
	}
	return dedupeFold(kws)
}

type expansionResponse struct {
	Subtopics []types.Subtopic `json:"subtopics"`
}

func (e *Expander) expandWithCapability(ctx context.Context, topic string, profile types.Profile) ([]types.Subtopic, error) {
	prompt, err := prompts.Render("expansion.json", "expand-topic", map[string]string{
		"Topic":        topic,
		"Persona":      profile.Persona,
		"Technicality": string(profile.Technicality),
		"RecentTopics": joinOrNone(profile.RecentTopics),
		"Traits":       joinOrNone(topTraits(profile.Traits, 5)),
		"MaxSubtopics": strconv.Itoa(e.maxSubtopics),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render expansion prompt: %w", err)
	}

	raw, err := e.capability.CompleteJSON(ctx, prompt, e.tier)
	if err != nil {
		return nil, err
	}
	if err := schemas.Validate(schemas.Expansion, []byte(raw)); err != nil {
		return nil, &llm.CapabilityError{Op: "expand", Cause: err}
	}

	var resp expansionResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, &llm.CapabilityError{Op: "expand", Cause: err}
	}
	return resp.Subtopics, nil
}

// normalize puts the topic first, dedupes subtopics case-insensitively,
// fills empty keyword sets from the subtopic name and caps the list.
func normalize(topic string, subtopics []types.Subtopic, maxSubtopics int) []types.Subtopic {
	all := append([]types.Subtopic{{Name: topic}}, subtopics...)

	out := make([]types.Subtopic, 0, maxSubtopics)
	seen := make(map[string]bool)
	for _, s := range all {
		name := strings.TrimSpace(s.Name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true

		kws := dedupeFold(slices.Concat(s.Keywords, fallbackKeywords(name)))
		if len(kws) > maxKeywordsPerSubtopic {
			kws = kws[:maxKeywordsPerSubtopic]
		}
		out = append(out, types.Subtopic{Name: name, Keywords: kws})
		if len(out) == maxSubtopics {
			break
		}
	}
	return out
}

// biasTowardInterests stably moves subtopics that share a content word with
// a recent topic or trait ahead of the others.
func biasTowardInterests(subtopics []types.Subtopic, profile types.Profile) []types.Subtopic {
	interest := make(map[string]bool)
	for _, t := range profile.RecentTopics {
		for _, tok := range textutil.ContentTokens(t) {
			interest[textutil.Stem(tok)] = true
		}
	}
	for name := range profile.Traits {
		for _, tok := range textutil.ContentTokens(name) {
			interest[textutil.Stem(tok)] = true
		}
	}
	if len(interest) == 0 {
		return subtopics
	}

	out := slices.Clone(subtopics)
	slices.SortStableFunc(out, func(a, b types.Subtopic) int {
		ai, bi := overlaps(a, interest), overlaps(b, interest)
		switch {
		case ai && !bi:
			return -1
		case bi && !ai:
			return 1
		default:
			return 0
		}
	})
	return out
}

func overlaps(s types.Subtopic, interest map[string]bool) bool {
	for _, tok := range textutil.ContentTokens(s.Name + " " + strings.Join(s.Keywords, " ")) {
		if interest[textutil.Stem(tok)] {
			return true
		}
	}
	return false
}

func dedupeFold(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func topTraits(traits map[string]float64, n int) []string {
	names := make([]string, 0, len(traits))
	for k := range traits {
		names = append(names, k)
	}
	slices.SortFunc(names, func(a, b string) int {
		if traits[a] != traits[b] {
			if traits[a] > traits[b] {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
