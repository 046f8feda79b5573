package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompts(t *testing.T) {
	ClearCache()

	for _, tc := range []struct{ file, key string }{
		{"expansion.json", "expand-topic"},
		{"synthesis.json", "section-narrative"},
		{"traits.json", "infer-traits"},
	} {
		t.Run(tc.key, func(t *testing.T) {
			prompt, err := Get(tc.file, tc.key)
			require.NoError(t, err)
			assert.NotEmpty(t, prompt)
		})
	}
}

func TestGet_InvalidFile(t *testing.T) {
	ClearCache()

	_, err := Get("nonexistent.json", "some-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")
}

func TestGet_InvalidKey(t *testing.T) {
	ClearCache()

	_, err := Get("expansion.json", "nonexistent-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMustGet_Panics(t *testing.T) {
	ClearCache()

	assert.Panics(t, func() {
		MustGet("nonexistent.json", "some-key")
	})
}

func TestFormat(t *testing.T) {
	result := Format("Hello {{.Name}}, welcome to {{.Company}}!", map[string]string{
		"Name":    "Alice",
		"Company": "Acme Corp",
	})
	assert.Equal(t, "Hello Alice, welcome to Acme Corp!", result)

	assert.Equal(t, "Hello {{.Name}}", Format("Hello {{.Name}}", nil), "unknown placeholders remain")
}

func TestRender_FillsExpansionPrompt(t *testing.T) {
	ClearCache()

	out, err := Render("expansion.json", "expand-topic", map[string]string{
		"Topic":        "distributed databases",
		"Persona":      "engineer",
		"Technicality": "high",
		"RecentTopics": "none",
		"Traits":       "none",
		"MaxSubtopics": "3",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Topic: distributed databases")
	assert.Contains(t, out, "at most 3 distinct subtopics")
	assert.NotContains(t, out, "{{.")
}
