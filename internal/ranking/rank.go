package ranking

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/daily-brief/internal/config"
	"github.com/jonathan/daily-brief/internal/textutil"
	"github.com/jonathan/daily-brief/internal/types"
)

// TopicContext is the run-level input to scoring. Reference is the instant
// recency is measured from; it is fixed per run so scores are reproducible.
type TopicContext struct {
	Expansion types.TopicExpansion
	Reference time.Time
}

// Score computes the relevance score of one item and its factor breakdown.
//
// score = (wt*topic + wr*recency + ws*bias + wp*persona) / (wt+wr+ws+wp),
// clamped to [0,1] and rounded to 6 decimals. It depends only on its
// arguments.
func Score(item types.RawItem, profile types.Profile, tc TopicContext, cfg config.ScoringConfig) (float64, types.Factors) {
	_, topicMatch := BestSubtopic(item, tc.Expansion)

	f := types.Factors{
		TopicMatch: round6(topicMatch),
		Recency:    round6(computeRecency(item.Published, tc.Reference, cfg.RecencyHalfLife, cfg.UnknownRecency)),
		SourceBias: round6(clamp01(profile.Bias(item.Source))),
		PersonaFit: round6(computePersonaFit(item, profile)),
	}

	w := cfg.Weights
	sum := w.Sum()
	if sum <= 0 {
		return 0, f
	}
	score := (w.TopicMatch*f.TopicMatch + w.Recency*f.Recency + w.SourceBias*f.SourceBias + w.PersonaFit*f.PersonaFit) / sum
	return round6(clamp01(score)), f
}

// BestSubtopic returns the subtopic whose keywords best match the item and
// the match score. Ties go to the earlier subtopic. With no match at all the
// item's origin subtopic is returned.
func BestSubtopic(item types.RawItem, expansion types.TopicExpansion) (string, float64) {
	titleStems := textutil.StemAll(item.Title)
	bodyStems := textutil.StemAll(item.Body)

	best, bestScore := "", 0.0
	for _, sub := range expansion.Subtopics {
		score, _ := computeTopicMatch(titleStems, bodyStems, sub.Keywords)
		if score > bestScore {
			best, bestScore = sub.Name, score
		}
	}
	if best == "" {
		best = item.Subtopic
		if best == "" && len(expansion.Subtopics) > 0 {
			best = expansion.Subtopics[0].Name
		}
	}
	return best, clamp01(bestScore)
}

// MatchedKeywords lists the keywords of a subtopic found in the item.
func MatchedKeywords(item types.RawItem, keywords []string) []string {
	_, matched := computeTopicMatch(textutil.StemAll(item.Title), textutil.StemAll(item.Body), keywords)
	return matched
}

// Ranking is the outcome of scoring a batch of items.
type Ranking struct {
	// All holds every item in input order with its decision.
	All []types.ScoredItem
	// Accepted holds the accepted items in rank order.
	Accepted []types.ScoredItem
}

// Rejected counts rejected items.
func (r Ranking) Rejected() int {
	return len(r.All) - len(r.Accepted)
}

// Rank scores every item and accepts those scoring at or above the threshold,
// keeping at most cfg.MaxItems. Candidates are ordered by score desc,
// published desc (undated last), topic match desc, then input order; the
// ones cut by the limit are rejected as over_limit.
func Rank(items []types.RawItem, profile types.Profile, tc TopicContext, cfg config.ScoringConfig) Ranking {
	all := make([]types.ScoredItem, len(items))
	var candidates []int
	for i, item := range items {
		score, factors := Score(item, profile, tc, cfg)
		all[i] = types.ScoredItem{
			Item:    item,
			Index:   i,
			Score:   score,
			Factors: factors,
		}
		if score >= cfg.Threshold {
			candidates = append(candidates, i)
		} else {
			all[i].Reason = types.ReasonBelowThreshold
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return less(all[candidates[a]], all[candidates[b]])
	})

	accepted := make([]types.ScoredItem, 0, min(len(candidates), cfg.MaxItems))
	for rank, idx := range candidates {
		if cfg.MaxItems > 0 && rank >= cfg.MaxItems {
			all[idx].Reason = types.ReasonOverLimit
			continue
		}
		all[idx].Accepted = true
		accepted = append(accepted, all[idx])
	}

	return Ranking{All: all, Accepted: accepted}
}

// SortByRank orders items the way Rank orders accepted items.
func SortByRank(items []types.ScoredItem) {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

func less(a, b types.ScoredItem) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	ap, bp := a.Item.Published, b.Item.Published
	switch {
	case ap != nil && bp == nil:
		return true
	case ap == nil && bp != nil:
		return false
	case ap != nil && bp != nil && !ap.Equal(*bp):
		return ap.After(*bp)
	}
	if a.Factors.TopicMatch != b.Factors.TopicMatch {
		return a.Factors.TopicMatch > b.Factors.TopicMatch
	}
	return a.Index < b.Index
}

// Explain describes a factor breakdown in words.
func Explain(f types.Factors) string {
	var parts []string

	switch {
	case f.TopicMatch >= 0.7:
		parts = append(parts, "Strong topic match")
	case f.TopicMatch >= 0.4:
		parts = append(parts, "Moderate topic match")
	case f.TopicMatch > 0:
		parts = append(parts, "Weak topic match")
	default:
		parts = append(parts, "No topic match")
	}

	switch {
	case f.Recency >= 0.8:
		parts = append(parts, "very recent")
	case f.Recency >= 0.4:
		parts = append(parts, "recent")
	default:
		parts = append(parts, "older item")
	}

	if f.SourceBias > 0.6 {
		parts = append(parts, "preferred source")
	} else if f.SourceBias < 0.4 {
		parts = append(parts, "often-filtered source")
	}

	if f.PersonaFit >= 0.8 {
		parts = append(parts, "good reading-level fit")
	}

	return strings.Join(parts, ", ")
}

// FormatFactors renders factors compactly, e.g. "topic 1.00 · recency 0.99".
func FormatFactors(f types.Factors) string {
	return fmt.Sprintf("topic %.2f · recency %.2f · source %.2f · persona %.2f",
		f.TopicMatch, f.Recency, f.SourceBias, f.PersonaFit)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
