package publish

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/daily-brief/internal/types"
)

func brief() types.Brief {
	return types.Brief{
		RunID:       "run-1",
		Topic:       "Distributed Databases",
		GeneratedAt: time.Date(2026, 10, 16, 7, 30, 0, 0, time.UTC),
		Sections: []types.BriefSection{{
			Theme:     "distributed databases",
			Narrative: "- Raft [1]",
			Citations: []types.Citation{{Number: 1, Title: "Raft", URL: "https://example.com", Score: 0.8}},
		}},
		Text:     "# Daily brief: Distributed Databases\n",
		Snapshot: types.NewProfile("u"),
	}
}

func TestFilePublisher_Publish(t *testing.T) {
	dir := t.TempDir()

	receipt, err := NewFilePublisher(dir).Publish(context.Background(), brief())
	require.NoError(t, err)

	md := filepath.Join(dir, "2026-10-16-distributed-databases.md")
	js := filepath.Join(dir, "2026-10-16-distributed-databases.json")
	assert.Equal(t, []string{md, js}, receipt.Files)

	text, err := os.ReadFile(md)
	require.NoError(t, err)
	assert.Equal(t, "# Daily brief: Distributed Databases\n", string(text))

	raw, err := os.ReadFile(js)
	require.NoError(t, err)
	var got types.Brief
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "run-1", got.RunID)

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".brief-*.tmp"))
	assert.Empty(t, leftovers)
}

func TestFilePublisher_RejectsInvalidBrief(t *testing.T) {
	dir := t.TempDir()
	b := brief()
	b.Sections[0].Citations = nil

	_, err := NewFilePublisher(dir).Publish(context.Background(), b)
	require.Error(t, err)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "nothing is written for an invalid brief")
}

func TestFilePublisher_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFilePublisher(t.TempDir()).Publish(ctx, brief())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBaseName_EmptyTopic(t *testing.T) {
	b := brief()
	b.Topic = "!!!"
	assert.Equal(t, "2026-10-16-brief", BaseName(b))
}
