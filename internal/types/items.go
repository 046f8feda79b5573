package types

import "time"

// SourceType identifies the adapter family that serves a fetch request.
type SourceType string

const (
	SourceNews      SourceType = "news"
	SourceSocial    SourceType = "social"
	SourceWebSearch SourceType = "web_search"
	SourceFeed      SourceType = "feed"
	SourceReddit    SourceType = "reddit"
	SourceSite      SourceType = "site"
)

// OriginType is the coarse origin of an item.
type OriginType string

const (
	OriginFeed   OriginType = "feed"
	OriginSocial OriginType = "social"
	OriginWeb    OriginType = "web"
)

// Subtopic is one expanded facet of the run topic with its search keywords.
type Subtopic struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

// TopicExpansion is the output of topic expansion.
type TopicExpansion struct {
	Topic     string     `json:"topic"`
	Subtopics []Subtopic `json:"subtopics"`
	// Fallback is true when the deterministic expansion was used.
	Fallback bool `json:"fallback"`
}

// Keywords returns the keyword set for a subtopic name, or nil.
func (e TopicExpansion) Keywords(subtopic string) []string {
	for _, s := range e.Subtopics {
		if s.Name == subtopic {
			return s.Keywords
		}
	}
	return nil
}

// FetchRequest is one unit of work for the fetch gateway.
type FetchRequest struct {
	SourceType SourceType `json:"source_type"`
	Query      string     `json:"query"`
	SourceID   string     `json:"source_id"`
	// Subtopic is the subtopic that produced the request; empty for run-wide sources.
	Subtopic string   `json:"subtopic,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// RawItem is unprocessed content returned by an adapter.
type RawItem struct {
	SourceID  string            `json:"source_id"`
	Source    string            `json:"source"`
	Origin    OriginType        `json:"origin"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Published *time.Time        `json:"published,omitempty"`
	URL       string            `json:"url"`
	Subtopic  string            `json:"subtopic,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Factors is the per-factor breakdown of a relevance score, each in [0,1].
type Factors struct {
	TopicMatch float64 `json:"topic_match"`
	Recency    float64 `json:"recency"`
	SourceBias float64 `json:"source_bias"`
	PersonaFit float64 `json:"persona_fit"`
}

// Rejection reasons recorded on rejected items.
const (
	ReasonBelowThreshold = "below_threshold"
	ReasonOverLimit      = "over_limit"
)

// ScoredItem is a RawItem annotated with its relevance decision.
type ScoredItem struct {
	Item     RawItem `json:"item"`
	Index    int     `json:"index"`
	Score    float64 `json:"score"`
	Factors  Factors `json:"factors"`
	Accepted bool    `json:"accepted"`
	Reason   string  `json:"reason,omitempty"`
}
