package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProfile_Defaults(t *testing.T) {
	p := NewProfile("u1")

	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, DefaultPersona, p.Persona)
	assert.Equal(t, ToneNeutral, p.Tone)
	assert.Equal(t, TechnicalityMedium, p.Technicality)
	assert.Equal(t, LengthMedium, p.Length)
	assert.NotNil(t, p.RecentTopics)
	assert.NotNil(t, p.Traits)
	assert.NotNil(t, p.SourceBias)
}

func TestProfile_UnmarshalPartialThenDefaults(t *testing.T) {
	var p Profile
	require.NoError(t, json.Unmarshal([]byte(`{"user_id":"u2","tone":"formal"}`), &p))
	p.ApplyDefaults()

	assert.Equal(t, ToneFormal, p.Tone)
	assert.Equal(t, LengthMedium, p.Length)
	assert.Equal(t, DefaultPersona, p.Persona)
}

func TestProfile_CloneIsDeep(t *testing.T) {
	p := NewProfile("u1")
	p.RecentTopics = []string{"a"}
	p.SourceBias["hn"] = 0.7
	p.Traits["curious"] = 0.4

	c := p.Clone()
	c.RecentTopics[0] = "b"
	c.SourceBias["hn"] = 0.1
	c.Traits["curious"] = 0.9

	assert.Equal(t, "a", p.RecentTopics[0])
	assert.Equal(t, 0.7, p.SourceBias["hn"])
	assert.Equal(t, 0.4, p.Traits["curious"])
}

func TestProfile_Bias(t *testing.T) {
	p := NewProfile("u1")
	p.SourceBias["known"] = 0.9

	assert.Equal(t, 0.9, p.Bias("known"))
	assert.Equal(t, NeutralSourceBias, p.Bias("unknown"))
}

func TestOverrides_Apply(t *testing.T) {
	persona := "engineer"
	tech := TechnicalityHigh
	o := Overrides{Persona: &persona, Technicality: &tech}
	base := NewProfile("u1")

	out := o.Apply(base)

	assert.False(t, o.Empty())
	assert.Equal(t, "engineer", out.Persona)
	assert.Equal(t, TechnicalityHigh, out.Technicality)
	assert.Equal(t, LengthMedium, out.Length)
	assert.Equal(t, DefaultPersona, base.Persona, "base must be untouched")
	assert.True(t, Overrides{}.Empty())
}

func TestLengthWordsAndTechnicalityRank(t *testing.T) {
	assert.Equal(t, 400, LengthShort.Words())
	assert.Equal(t, 800, LengthMedium.Words())
	assert.Equal(t, 1200, LengthLong.Words())
	assert.Equal(t, 800, Length("").Words())

	assert.Equal(t, 0, TechnicalityLow.Rank())
	assert.Equal(t, 1, TechnicalityMedium.Rank())
	assert.Equal(t, 2, TechnicalityHigh.Rank())
}

func TestStage_Terminal(t *testing.T) {
	assert.True(t, StageDone.Terminal())
	assert.True(t, StageFailed.Terminal())
	assert.False(t, StageScoring.Terminal())
}
