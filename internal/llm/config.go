// Package llm provides the reasoning capability used for topic expansion,
// synthesis and trait inference, behind a narrow client interface.
package llm

import "time"

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for classification and short structured output (trait inference)
	TierLite ModelTier = "lite"
	// TierStandard is for structured expansion and section prose
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long-form synthesis
	TierAdvanced ModelTier = "advanced"
)

// ParseTier maps a config string to a tier, defaulting to standard.
func ParseTier(s string) ModelTier {
	switch ModelTier(s) {
	case TierLite, TierAdvanced:
		return ModelTier(s)
	default:
		return TierStandard
	}
}

// Config holds the model configuration for the capability
type Config struct {
	Models      map[ModelTier]string
	Temperature float32
	// CallTimeout bounds each capability call; zero means no extra bound.
	CallTimeout time.Duration
}

// DefaultConfig returns the default Gemini configuration
func DefaultConfig() *Config {
	return &Config{
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Temperature: 0.1,
		CallTimeout: 45 * time.Second,
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}
