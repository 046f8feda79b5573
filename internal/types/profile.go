// Package types provides type definitions for structured data shared across the daily-brief pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"maps"
	"slices"
	"time"
)

// Tone selects the phrasing register of the rendered brief.
type Tone string

const (
	ToneNeutral      Tone = "neutral"
	ToneCasual       Tone = "casual"
	ToneFormal       Tone = "formal"
	ToneEnthusiastic Tone = "enthusiastic"
)

// Technicality is an ordinal vocabulary level.
type Technicality string

const (
	TechnicalityLow    Technicality = "low"
	TechnicalityMedium Technicality = "medium"
	TechnicalityHigh   Technicality = "high"
)

// Rank returns the ordinal position of the level (low=0, medium=1, high=2).
// Unknown values rank as medium.
func (t Technicality) Rank() int {
	switch t {
	case TechnicalityLow:
		return 0
	case TechnicalityHigh:
		return 2
	default:
		return 1
	}
}

// Length is a target word-count band.
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// Words returns the narrative word budget for the band.
func (l Length) Words() int {
	switch l {
	case LengthShort:
		return 400
	case LengthLong:
		return 1200
	default:
		return 800
	}
}

// Profile defaults applied when a field is absent.
const (
	DefaultPersona      = "default"
	DefaultTone         = ToneNeutral
	DefaultTechnicality = TechnicalityMedium
	DefaultLength       = LengthMedium
	NeutralSourceBias   = 0.5
)

// Profile is the persisted long-term preference record for one user.
type Profile struct {
	UserID       string             `json:"user_id" validate:"required"`
	Persona      string             `json:"persona"`
	Tone         Tone               `json:"tone" validate:"omitempty,oneof=neutral casual formal enthusiastic"`
	Technicality Technicality       `json:"technicality" validate:"omitempty,oneof=low medium high"`
	Length       Length             `json:"length" validate:"omitempty,oneof=short medium long"`
	RecentTopics []string           `json:"recent_topics"`
	Traits       map[string]float64 `json:"traits"`
	SourceBias   map[string]float64 `json:"source_bias"`
	UpdatedAt    time.Time          `json:"updated_at,omitempty"`
	// Version increments on every successful write.
	Version int64 `json:"version"`
}

// NewProfile returns the default profile for a user that has never run.
func NewProfile(userID string) Profile {
	p := Profile{UserID: userID}
	p.ApplyDefaults()
	return p
}

// ApplyDefaults fills every absent scalar preference and nil map.
func (p *Profile) ApplyDefaults() {
	if p.Persona == "" {
		p.Persona = DefaultPersona
	}
	if p.Tone == "" {
		p.Tone = DefaultTone
	}
	if p.Technicality == "" {
		p.Technicality = DefaultTechnicality
	}
	if p.Length == "" {
		p.Length = DefaultLength
	}
	if p.RecentTopics == nil {
		p.RecentTopics = []string{}
	}
	if p.Traits == nil {
		p.Traits = map[string]float64{}
	}
	if p.SourceBias == nil {
		p.SourceBias = map[string]float64{}
	}
}

// Clone returns a deep copy. Snapshots held by a run never share maps or
// slices with the live record.
func (p Profile) Clone() Profile {
	out := p
	out.RecentTopics = slices.Clone(p.RecentTopics)
	out.Traits = maps.Clone(p.Traits)
	out.SourceBias = maps.Clone(p.SourceBias)
	out.ApplyDefaults()
	return out
}

// Bias returns the source-bias weight for a source, or the neutral default.
func (p Profile) Bias(source string) float64 {
	if w, ok := p.SourceBias[source]; ok {
		return w
	}
	return NeutralSourceBias
}

// Overrides are per-run preference changes supplied by the caller.
// Nil fields leave the stored value untouched.
type Overrides struct {
	Persona      *string       `json:"persona,omitempty"`
	Tone         *Tone         `json:"tone,omitempty" validate:"omitempty,oneof=neutral casual formal enthusiastic"`
	Technicality *Technicality `json:"technicality,omitempty" validate:"omitempty,oneof=low medium high"`
	Length       *Length       `json:"length,omitempty" validate:"omitempty,oneof=short medium long"`
}

// Empty reports whether no override is set.
func (o Overrides) Empty() bool {
	return o.Persona == nil && o.Tone == nil && o.Technicality == nil && o.Length == nil
}

// Apply returns a copy of p with the overrides applied.
func (o Overrides) Apply(p Profile) Profile {
	out := p.Clone()
	if o.Persona != nil && *o.Persona != "" {
		out.Persona = *o.Persona
	}
	if o.Tone != nil && *o.Tone != "" {
		out.Tone = *o.Tone
	}
	if o.Technicality != nil && *o.Technicality != "" {
		out.Technicality = *o.Technicality
	}
	if o.Length != nil && *o.Length != "" {
		out.Length = *o.Length
	}
	return out
}
