package ranking

import (
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/daily-brief/internal/config"
	"github.com/jonathan/daily-brief/internal/types"
)

var reference = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func hoursAgo(h int) *time.Time {
	ts := reference.Add(-time.Duration(h) * time.Hour)
	return &ts
}

func topicContext() TopicContext {
	return TopicContext{
		Expansion: types.TopicExpansion{
			Topic: "distributed databases",
			Subtopics: []types.Subtopic{
				{Name: "distributed databases", Keywords: []string{"distributed databases", "distributed", "databases"}},
			},
		},
		Reference: reference,
	}
}

func scoringConfig() config.ScoringConfig {
	return config.Default().Scoring
}

func TestScore_IsPure(t *testing.T) {
	item := types.RawItem{
		Source:    "db-weekly",
		Title:     "Distributed databases at scale",
		Body:      "Consensus, replication and sharding in practice.",
		Published: hoursAgo(5),
	}
	profile := types.NewProfile("u")
	profile.SourceBias["db-weekly"] = 0.7

	s1, f1 := Score(item, profile, topicContext(), scoringConfig())
	s2, f2 := Score(item, profile, topicContext(), scoringConfig())

	assert.Equal(t, s1, s2)
	assert.Equal(t, f1, f2)
	assert.GreaterOrEqual(t, s1, 0.0)
	assert.LessOrEqual(t, s1, 1.0)
}

func TestScore_WeightedCombination(t *testing.T) {
	cfg := scoringConfig()
	item := types.RawItem{Title: "Distributed databases", Published: hoursAgo(0), Source: "s"}
	profile := types.NewProfile("u")

	score, f := Score(item, profile, topicContext(), cfg)

	w := cfg.Weights
	want := (w.TopicMatch*f.TopicMatch + w.Recency*f.Recency + w.SourceBias*f.SourceBias + w.PersonaFit*f.PersonaFit) / w.Sum()
	assert.InDelta(t, want, score, 1e-6)
	assert.Equal(t, 1.0, f.TopicMatch)
	assert.Equal(t, 1.0, f.Recency)
	assert.Equal(t, types.NeutralSourceBias, f.SourceBias)
}

func TestScore_ZeroWeightsScoreZero(t *testing.T) {
	cfg := scoringConfig()
	cfg.Weights = config.Weights{}
	score, _ := Score(types.RawItem{Title: "x"}, types.NewProfile("u"), topicContext(), cfg)
	assert.Equal(t, 0.0, score)
}

// Only source bias is weighted so the score equals the profile's bias exactly.
func TestRank_ThresholdIsInclusive(t *testing.T) {
	cfg := scoringConfig()
	cfg.Weights = config.Weights{SourceBias: 1}
	cfg.Threshold = 0.6

	profile := types.NewProfile("u")
	profile.SourceBias["at"] = 0.6
	profile.SourceBias["below"] = 0.5999

	r := Rank([]types.RawItem{
		{Source: "at", Title: "a"},
		{Source: "below", Title: "b"},
	}, profile, topicContext(), cfg)

	require.Len(t, r.All, 2)
	assert.Equal(t, 0.6, r.All[0].Score)
	assert.True(t, r.All[0].Accepted)
	assert.False(t, r.All[1].Accepted)
	assert.Equal(t, types.ReasonBelowThreshold, r.All[1].Reason)
	assert.Equal(t, 1, r.Rejected())
}

func TestRank_TieBreakOrder(t *testing.T) {
	cfg := scoringConfig()
	cfg.Weights = config.Weights{SourceBias: 1}
	cfg.Threshold = 0
	cfg.MaxItems = 3

	items := []types.RawItem{
		{Title: "undated", Source: "s"},
		{Title: "older", Source: "s", Published: hoursAgo(10)},
		{Title: "newer", Source: "s", Published: hoursAgo(1)},
		{Title: "distributed databases newer twin", Source: "s", Published: hoursAgo(1)},
		{Title: "newer twin", Source: "s", Published: hoursAgo(1)},
	}

	r := Rank(items, types.NewProfile("u"), topicContext(), cfg)

	var order []string
	for _, a := range r.Accepted {
		order = append(order, a.Item.Title)
	}
	// Equal scores: recency first, then topic match, then input order.
	assert.Equal(t, []string{"distributed databases newer twin", "newer", "newer twin"}, order)
	assert.Equal(t, types.ReasonOverLimit, r.All[0].Reason)
	assert.Equal(t, types.ReasonOverLimit, r.All[1].Reason)
	assert.False(t, r.All[1].Accepted)
}

func TestSortByRank_MatchesRank(t *testing.T) {
	items := []types.RawItem{
		{Title: "Distributed databases weekly", Source: "a", Published: hoursAgo(30)},
		{Title: "Distributed databases today", Source: "a", Published: hoursAgo(1)},
		{Title: "Distributed databases", Source: "a"},
	}
	r := Rank(items, types.NewProfile("u"), topicContext(), scoringConfig())
	require.Len(t, r.Accepted, 3)

	shuffled := slices.Clone(r.All)
	slices.Reverse(shuffled)
	SortByRank(shuffled)
	assert.Equal(t, r.Accepted, shuffled)
}

func TestRank_Deterministic(t *testing.T) {
	items := []types.RawItem{
		{Title: "Distributed databases in 2026", Source: "a", Published: hoursAgo(3)},
		{Title: "Cooking tips", Source: "b", Published: hoursAgo(3)},
		{Title: "Why distributed systems fail", Source: "a", Body: "databases too", Published: hoursAgo(30)},
	}
	profile := types.NewProfile("u")

	first := Rank(items, profile, topicContext(), scoringConfig())
	second := Rank(items, profile, topicContext(), scoringConfig())

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("ranking not reproducible (-first +second):\n%s", diff)
	}
}

func TestBestSubtopic(t *testing.T) {
	exp := types.TopicExpansion{Subtopics: []types.Subtopic{
		{Name: "consensus", Keywords: []string{"raft", "paxos"}},
		{Name: "storage", Keywords: []string{"lsm", "raft"}},
	}}

	name, score := BestSubtopic(types.RawItem{Title: "Raft explained"}, exp)
	assert.Equal(t, "consensus", name, "ties go to the earlier subtopic")
	assert.InDelta(t, 0.5, score, 1e-9)

	name, score = BestSubtopic(types.RawItem{Title: "nothing", Subtopic: "storage"}, exp)
	assert.Equal(t, "storage", name, "no match falls back to the origin subtopic")
	assert.Equal(t, 0.0, score)
}

func TestScore_TopicMatchUsesBestSubtopic(t *testing.T) {
	tc := TopicContext{Reference: reference, Expansion: types.TopicExpansion{Subtopics: []types.Subtopic{
		{Name: "consensus", Keywords: []string{"raft", "paxos"}},
		{Name: "storage", Keywords: []string{"lsm", "compaction"}},
	}}}
	item := types.RawItem{Title: "LSM compaction tuning", Subtopic: "consensus", Published: hoursAgo(1)}

	_, f := Score(item, types.NewProfile("u"), tc, scoringConfig())
	assert.Equal(t, 1.0, f.TopicMatch, "fetched for consensus, matched against storage")

	name, _ := BestSubtopic(item, tc.Expansion)
	assert.Equal(t, "storage", name)
}

func TestExplain(t *testing.T) {
	assert.Equal(t, "Strong topic match, very recent, preferred source, good reading-level fit",
		Explain(types.Factors{TopicMatch: 1, Recency: 0.9, SourceBias: 0.7, PersonaFit: 0.9}))
	assert.Equal(t, "No topic match, older item, often-filtered source",
		Explain(types.Factors{SourceBias: 0.2}))
}
