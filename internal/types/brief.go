package types

import "time"

// Citation references one supporting item of a section.
type Citation struct {
	Number int     `json:"number"`
	Title  string  `json:"title"`
	URL    string  `json:"url"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// BriefSection is one synthesized theme.
type BriefSection struct {
	Theme     string       `json:"theme"`
	Items     []ScoredItem `json:"items"`
	Narrative string       `json:"narrative"`
	KeyPoints []string     `json:"key_points,omitempty"`
	Citations []Citation   `json:"citations"`
	// Degraded is true when the narrative came from the templated fallback.
	Degraded bool `json:"degraded"`
}

// Brief is the final rendered document of one run.
type Brief struct {
	RunID       string         `json:"run_id"`
	Topic       string         `json:"topic"`
	GeneratedAt time.Time      `json:"generated_at"`
	Sections    []BriefSection `json:"sections"`
	Text        string         `json:"text"`
	WordCount   int            `json:"word_count"`
	// Snapshot holds the preferences used for this run, frozen at run start.
	Snapshot Profile `json:"snapshot"`
}
