package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", config.GetModel(TierStandard))
	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierAdvanced))
}

func TestGetModel_Fallback(t *testing.T) {
	config := &Config{Models: map[ModelTier]string{TierLite: "fallback-model"}}
	assert.Equal(t, "fallback-model", config.GetModel("unknown"))

	empty := &Config{Models: map[ModelTier]string{}}
	assert.Equal(t, "", empty.GetModel(TierStandard))
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, TierLite, ParseTier("lite"))
	assert.Equal(t, TierAdvanced, ParseTier("advanced"))
	assert.Equal(t, TierStandard, ParseTier(""))
	assert.Equal(t, TierStandard, ParseTier("bogus"))
}

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "json fence", input: "```json\n{\"key\": \"value\"}\n```", expected: `{"key": "value"}`},
		{name: "generic fence", input: "```\n{\"key\": \"value\"}\n```", expected: `{"key": "value"}`},
		{name: "plain", input: `{"key": "value"}`, expected: `{"key": "value"}`},
		{name: "preamble", input: "Here is the JSON:\n{\"a\": 1}", expected: `{"a": 1}`},
		{name: "trailing text", input: "{\"a\": 1}\n\nAnything else?", expected: `{"a": 1}`},
		{name: "braces in string", input: `{"t": "Hello {name}!"} tail`, expected: `{"t": "Hello {name}!"}`},
		{name: "escaped quote", input: `x {"m": "say \"}\""} y`, expected: `{"m": "say \"}\""}`},
		{name: "array", input: "items: [\"a\", [\"b\"]] done", expected: `["a", ["b"]]`},
		{name: "no json", input: "not json", expected: "not json"},
		{name: "unbalanced", input: `{"a": 1`, expected: `{"a": 1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanJSONBlock(tt.input))
		})
	}
}

func TestCapability_NilClientIsUnavailable(t *testing.T) {
	c := NewCapability(nil, nil)

	_, err := c.Complete(context.Background(), "p", TierLite)
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)
	_, err = c.CompleteJSON(context.Background(), "p", TierLite)
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)

	_, err = OrUnavailable(nil).Complete(context.Background(), "p", TierLite)
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)
}

func TestCapability_WrapsProviderErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	c := NewCapability(&MockClient{
		GenerateContentFunc: func(context.Context, string, ModelTier) (string, error) {
			return "", boom
		},
	}, nil)

	_, err := c.Complete(context.Background(), "p", TierStandard)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)
	assert.ErrorIs(t, err, boom)

	var capErr *CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "complete", capErr.Op)
}

func TestCapability_EmptyResponseIsUnavailable(t *testing.T) {
	c := NewCapability(&MockClient{}, nil)
	_, err := c.Complete(context.Background(), "p", TierStandard)
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)
}

func TestCapability_JSONIsCleaned(t *testing.T) {
	c := NewCapability(&MockClient{
		GenerateJSONFunc: func(context.Context, string, ModelTier) (string, error) {
			return "```json\n{\"ok\": true}\n```", nil
		},
	}, nil)

	out, err := c.CompleteJSON(context.Background(), "p", TierStandard)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
}

func TestCapability_AppliesCallTimeout(t *testing.T) {
	c := NewCapability(&MockClient{
		GenerateContentFunc: func(ctx context.Context, _ string, _ ModelTier) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}, &Config{CallTimeout: 10 * time.Millisecond})

	_, err := c.Complete(context.Background(), "p", TierStandard)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)
}
