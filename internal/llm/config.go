// Package llm provides the resilient client for the generative text service and
// the transports it drives.
package llm

import (
	"time"

	"github.com/jonathan/gtm-copilot/internal/types"
)

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for short, cheap calls
	TierLite ModelTier = "lite"
	// TierStandard is for search-grounded research and asset copy
	TierStandard ModelTier = "standard"
	// TierAdvanced is for strategy synthesis and repair
	TierAdvanced ModelTier = "advanced"
)

// TransportKind selects how requests reach the service
type TransportKind string

// TransportKind constants
const (
	// TransportREST posts to the generateContent REST endpoint
	TransportREST TransportKind = "rest"
	// TransportSDK goes through the generative-ai-go SDK
	TransportSDK TransportKind = "sdk"
)

// DefaultBaseURL is the public Gemini REST endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Config holds the model and transport configuration
type Config struct {
	Transport   TransportKind
	BaseURL     string
	KeyInHeader bool
	Timeout     time.Duration
	Models      map[ModelTier]string
}

// DefaultConfig returns the default Gemini configuration
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportREST,
		BaseURL:   DefaultBaseURL,
		Timeout:   2 * time.Minute,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-flash",
		},
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := *c
	newConfig.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return &newConfig
}

// StageTier returns the model tier a pipeline stage runs on.
func StageTier(stage types.Stage) ModelTier {
	switch stage {
	case types.StageStrategy, types.StageRepair:
		return TierAdvanced
	case types.StageIntel, types.StageBattlecards, types.StageMessaging:
		return TierStandard
	}
	return TierLite
}
