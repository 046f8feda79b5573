package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{configPathEnv, storageEnv, dataDirEnv, thresholdEnv, geminiKeyEnv,
		searchKeyEnv, searchCXEnv, xBearerEnv, databaseURLEnv, publishDirEnv, serverAddrEnv} {
		t.Setenv(k, "")
	}
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "brief.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Scoring.Threshold)
	assert.Equal(t, 72*time.Hour, cfg.Scoring.RecencyHalfLife)
	assert.InDelta(t, 1.0, cfg.Scoring.Weights.Sum(), 1e-9)
	assert.Equal(t, 50, cfg.Preferences.RecentTopicsCapacity)
	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.True(t, cfg.Sources.News)
	assert.False(t, cfg.LLM.Enabled())
}

func TestLoad_FileOverridesKeepOmittedDefaults(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `
scoring:
  threshold: 0.7
  recency_half_life: 24h
sources:
  social: true
  feeds:
    - https://example.com/feed.xml
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Scoring.Threshold)
	assert.Equal(t, 24*time.Hour, cfg.Scoring.RecencyHalfLife)
	assert.Equal(t, 0.5, cfg.Scoring.Weights.TopicMatch, "omitted keys keep defaults")
	assert.True(t, cfg.Sources.Social)
	assert.True(t, cfg.Sources.News)
	assert.Equal(t, []string{"https://example.com/feed.xml"}, cfg.Sources.Feeds)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(geminiKeyEnv, "key-123")
	t.Setenv(thresholdEnv, "0.45")
	t.Setenv(storageEnv, DriverSQLite)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "key-123", cfg.LLM.APIKey)
	assert.True(t, cfg.LLM.Enabled())
	assert.Equal(t, 0.45, cfg.Scoring.Threshold)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "threshold above one", yaml: "scoring:\n  threshold: 1.5\n"},
		{name: "negative weight", yaml: "scoring:\n  weights:\n    recency: -1\n"},
		{name: "zero weights", yaml: "scoring:\n  weights:\n    topic_match: 0\n    recency: 0\n    source_bias: 0\n    persona_fit: 0\n"},
		{name: "unknown driver", yaml: "storage:\n  driver: mongo\n"},
		{name: "postgres without url", yaml: "storage:\n  driver: postgres\n"},
		{name: "bad feed url", yaml: "sources:\n  feeds: [\"not a url\"]\n"},
		{name: "malformed yaml", yaml: "scoring: [\n"},
		{name: "bad env threshold", yaml: "", env: map[string]string{thresholdEnv: "high"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeYAML(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
