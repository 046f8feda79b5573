package types

import "time"

// Stage names a pipeline state.
type Stage string

const (
	StageIdle                Stage = "idle"
	StageExpandingTopic      Stage = "expanding_topic"
	StageResolvingSources    Stage = "resolving_sources"
	StageFetching            Stage = "fetching"
	StageScoring             Stage = "scoring"
	StageSynthesizing        Stage = "synthesizing"
	StageComposing           Stage = "composing"
	StageUpdatingPreferences Stage = "updating_preferences"
	StagePublishing          Stage = "publishing"
	StageDone                Stage = "done"
	StageFailed              Stage = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// StageRecord is the trace entry for one stage execution.
type StageRecord struct {
	Stage           Stage     `json:"stage"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	CountIn         int       `json:"count_in"`
	CountOut        int       `json:"count_out"`
	Errors          []string  `json:"errors,omitempty"`
	Degraded        bool      `json:"degraded,omitempty"`
	CapabilityCalls int       `json:"capability_calls,omitempty"`
}

// Metrics are the final counters of a run.
type Metrics struct {
	SourcesAttempted int `json:"sources_attempted"`
	SourcesFailed    int `json:"sources_failed"`
	ItemsFetched     int `json:"items_fetched"`
	ItemsMalformed   int `json:"items_malformed"`
	ItemsAccepted    int `json:"items_accepted"`
	ItemsRejected    int `json:"items_rejected"`
	CapabilityCalls  int `json:"capability_calls"`
	DegradedStages   int `json:"degraded_stages"`
}

// SectionNarrative is the narrative a run wrote for one theme.
type SectionNarrative struct {
	Theme     string `json:"theme"`
	Narrative string `json:"narrative"`
	Degraded  bool   `json:"degraded,omitempty"`
}

// RunTrace is the append-only record of one pipeline execution.
type RunTrace struct {
	RunID      string        `json:"run_id"`
	UserID     string        `json:"user_id"`
	Topic      string        `json:"topic"`
	State      Stage         `json:"state"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Stages     []StageRecord `json:"stages"`
	Metrics    Metrics       `json:"metrics"`
	// Expansion is the topic expansion the run scored against.
	Expansion *TopicExpansion `json:"expansion,omitempty"`
	// Scored retains every scored item, rejected ones included.
	Scored []ScoredItem `json:"scored,omitempty"`
	// Narratives holds the synthesized text per section, in section order.
	Narratives []SectionNarrative `json:"narratives,omitempty"`
	Error      string             `json:"error,omitempty"`
}
