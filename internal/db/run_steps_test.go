package db

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/daily-brief/internal/types"
)

func TestStepStatus(t *testing.T) {
	tests := []struct {
		name  string
		rec   types.StageRecord
		state types.Stage
		last  bool
		want  string
	}{
		{name: "completed", rec: types.StageRecord{}, state: types.StageDone, want: StepStatusCompleted},
		{name: "degraded", rec: types.StageRecord{Degraded: true}, state: types.StageDone, want: StepStatusDegraded},
		{name: "last stage of failed run", rec: types.StageRecord{}, state: types.StageFailed, last: true, want: StepStatusFailed},
		{name: "earlier stage of failed run", rec: types.StageRecord{}, state: types.StageFailed, want: StepStatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stepStatus(tt.rec, tt.state, tt.last))
		})
	}
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	assert.Equal(t, "x", *nullIfEmpty("x"))
}

func TestSchemaEmbedded(t *testing.T) {
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS profiles")
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS run_steps")
}
