// Package steps defines the pipeline stages, their order and the legal
// transitions between them.
package steps

import (
	"fmt"

	"github.com/jonathan/daily-brief/internal/types"
)

// Stage categories, used to group progress output.
const (
	CategoryPlanning    = "planning"
	CategoryCollection  = "collection"
	CategoryAnalysis    = "analysis"
	CategoryWriting     = "writing"
	CategoryPersistence = "persistence"
)

// StageDefinition describes one stage.
type StageDefinition struct {
	Stage    types.Stage
	Category string
	// Next is the stage that follows a successful run of this one.
	Next types.Stage
	// Description is shown in progress output.
	Description string
}

// StageRegistry holds every non-terminal stage.
var StageRegistry = map[types.Stage]StageDefinition{
	types.StageIdle: {
		Stage:       types.StageIdle,
		Category:    CategoryPlanning,
		Next:        types.StageExpandingTopic,
		Description: "Loading preference profile",
	},
	types.StageExpandingTopic: {
		Stage:       types.StageExpandingTopic,
		Category:    CategoryPlanning,
		Next:        types.StageResolvingSources,
		Description: "Expanding topic into subtopics",
	},
	types.StageResolvingSources: {
		Stage:       types.StageResolvingSources,
		Category:    CategoryPlanning,
		Next:        types.StageFetching,
		Description: "Resolving sources",
	},
	types.StageFetching: {
		Stage:       types.StageFetching,
		Category:    CategoryCollection,
		Next:        types.StageScoring,
		Description: "Fetching items",
	},
	types.StageScoring: {
		Stage:       types.StageScoring,
		Category:    CategoryAnalysis,
		Next:        types.StageSynthesizing,
		Description: "Scoring items",
	},
	types.StageSynthesizing: {
		Stage:       types.StageSynthesizing,
		Category:    CategoryWriting,
		Next:        types.StageComposing,
		Description: "Synthesizing sections",
	},
	types.StageComposing: {
		Stage:       types.StageComposing,
		Category:    CategoryWriting,
		Next:        types.StageUpdatingPreferences,
		Description: "Composing brief",
	},
	types.StageUpdatingPreferences: {
		Stage:       types.StageUpdatingPreferences,
		Category:    CategoryPersistence,
		Next:        types.StagePublishing,
		Description: "Updating preferences",
	},
	types.StagePublishing: {
		Stage:       types.StagePublishing,
		Category:    CategoryPersistence,
		Next:        types.StageDone,
		Description: "Publishing brief",
	},
}

// TransitionError is an illegal state change.
type TransitionError struct {
	From types.Stage
	To   types.Stage
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal stage transition %s -> %s", e.From, e.To)
}

// ValidateTransition allows the successor of from, or Failed from any
// non-terminal stage.
func ValidateTransition(from, to types.Stage) error {
	if from.Terminal() {
		return &TransitionError{From: from, To: to}
	}
	if to == types.StageFailed {
		return nil
	}
	def, ok := StageRegistry[from]
	if !ok || def.Next != to {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Order returns the stages of a successful run, Idle through Done.
func Order() []types.Stage {
	out := []types.Stage{types.StageIdle}
	for s := types.StageIdle; !s.Terminal(); {
		s = StageRegistry[s].Next
		out = append(out, s)
	}
	return out
}

// Category returns the category of a stage, or "" for terminal stages.
func Category(s types.Stage) string {
	return StageRegistry[s].Category
}
