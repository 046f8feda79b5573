package db

import (
	"github.com/jonathan/daily-brief/internal/types"
)

// StepStatus constants
const (
	StepStatusCompleted = "completed"
	StepStatusDegraded  = "degraded"
	StepStatusFailed    = "failed"
)

// stepStatus maps a stage record to the run_steps status column.
func stepStatus(rec types.StageRecord, runState types.Stage, last bool) string {
	if last && runState == types.StageFailed {
		return StepStatusFailed
	}
	if rec.Degraded {
		return StepStatusDegraded
	}
	return StepStatusCompleted
}
