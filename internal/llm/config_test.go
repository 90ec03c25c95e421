package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/gtm-copilot/internal/types"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, TransportREST, config.Transport)
	assert.Equal(t, DefaultBaseURL, config.BaseURL)
	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", config.GetModel(TierStandard))
	assert.Equal(t, "gemini-2.5-flash", config.GetModel(TierAdvanced))
}

func TestGetModel_Fallback(t *testing.T) {
	config := &Config{
		Models: map[ModelTier]string{
			TierLite: "fallback-model",
		},
	}

	// Unknown tier should fallback to TierStandard, then TierLite
	assert.Equal(t, "fallback-model", config.GetModel("unknown"))
}

func TestGetModel_EmptyConfig(t *testing.T) {
	config := &Config{Models: map[ModelTier]string{}}
	assert.Equal(t, "", config.GetModel(TierAdvanced))
}

func TestWithModel(t *testing.T) {
	config := DefaultConfig()
	newConfig := config.WithModel(TierAdvanced, "gemini-2.5-pro")

	// Original should be unchanged
	assert.Equal(t, "gemini-2.5-flash", config.GetModel(TierAdvanced))
	assert.Equal(t, "gemini-2.5-pro", newConfig.GetModel(TierAdvanced))

	// Other fields and tiers are copied
	assert.Equal(t, "gemini-2.5-flash-lite", newConfig.GetModel(TierLite))
	assert.Equal(t, config.BaseURL, newConfig.BaseURL)
}

func TestStageTier(t *testing.T) {
	tests := []struct {
		stage types.Stage
		want  ModelTier
	}{
		{types.StageIntel, TierStandard},
		{types.StageStrategy, TierAdvanced},
		{types.StageRepair, TierAdvanced},
		{types.StageBattlecards, TierStandard},
		{types.StageMessaging, TierStandard},
		{types.StageGating, TierLite},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			assert.Equal(t, tt.want, StageTier(tt.stage))
		})
	}
}
