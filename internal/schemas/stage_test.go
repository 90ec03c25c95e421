package schemas

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/jonathan/gtm-copilot/internal/types"
)

func mustDoc(t *testing.T, raw string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}

func TestValidateStage(t *testing.T) {
	tests := []struct {
		name    string
		stage   types.Stage
		doc     string
		valid   bool
		missing []string
	}{
		{
			name:  "intel with empty claims",
			stage: types.StageIntel,
			doc:   `{"market_intel":{"claims":[]}}`,
			valid: true,
		},
		{
			name:    "intel without market_intel",
			stage:   types.StageIntel,
			doc:     `{"claims":[]}`,
			missing: []string{"market_intel"},
		},
		{
			name:    "intel without claims",
			stage:   types.StageIntel,
			doc:     `{"market_intel":{}}`,
			missing: []string{"market_intel.claims"},
		},
		{
			name:    "intel claims wrong type",
			stage:   types.StageIntel,
			doc:     `{"market_intel":{"claims":"none"}}`,
			missing: []string{"market_intel.claims"},
		},
		{
			name:  "strategy complete",
			stage: types.StageStrategy,
			doc:   `{"decision_layer":{},"alignment_layer":{},"strategy_layer":{"x":1}}`,
			valid: true,
		},
		{
			name:    "strategy missing two layers",
			stage:   types.StageStrategy,
			doc:     `{"decision_layer":{}}`,
			missing: []string{"alignment_layer", "strategy_layer"},
		},
		{
			name:    "repair uses strategy contract",
			stage:   types.StageRepair,
			doc:     `{"decision_layer":{},"alignment_layer":{}}`,
			missing: []string{"strategy_layer"},
		},
		{
			name:  "battlecards complete",
			stage: types.StageBattlecards,
			doc:   `{"status_quo":{},"main_competitor":{"competitor":"Gainsight"},"objection_handling":[]}`,
			valid: true,
		},
		{
			name:    "battlecards objections not array",
			stage:   types.StageBattlecards,
			doc:     `{"status_quo":{},"main_competitor":{},"objection_handling":{}}`,
			missing: []string{"objection_handling"},
		},
		{
			name:  "messaging complete",
			stage: types.StageMessaging,
			doc:   `{"core_message":"Churn, predicted","value_pillars":[{"pillar":"Speed"}]}`,
			valid: true,
		},
		{
			name:    "messaging core message not a string",
			stage:   types.StageMessaging,
			doc:     `{"core_message":7}`,
			missing: []string{"core_message", "value_pillars"},
		},
		{
			name:    "stage without contract",
			stage:   types.StageGating,
			doc:     `{}`,
			missing: []string{"(root)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateStage(mustDoc(t, tt.doc), tt.stage)
			assert.Equal(t, tt.valid, result.Valid)
			assert.Equal(t, tt.missing, result.MissingKeys)
		})
	}
}

func TestValidateStage_NilDocument(t *testing.T) {
	result := ValidateStage(nil, types.StageIntel)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"(root)"}, result.MissingKeys)
}

func TestValidationResult_Err(t *testing.T) {
	assert.NoError(t, ValidationResult{Valid: true}.Err(types.StageIntel))

	err := ValidationResult{MissingKeys: []string{"strategy_layer"}}.Err(types.StageStrategy)
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, types.StageStrategy, schemaErr.Stage)
	assert.Contains(t, err.Error(), "strategy_layer")
}

func TestStageSchema(t *testing.T) {
	for _, stage := range []types.Stage{types.StageIntel, types.StageStrategy, types.StageRepair, types.StageBattlecards, types.StageMessaging} {
		content, err := StageSchema(stage)
		require.NoError(t, err, stage)
		assert.True(t, json.Valid([]byte(content)), stage)
	}

	_, err := StageSchema(types.StagePipeline)
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}

// Validation is pure: repeated calls agree and the input is left untouched.
func TestValidateStage_IdempotentProperty(t *testing.T) {
	stages := []types.Stage{types.StageIntel, types.StageStrategy, types.StageBattlecards, types.StageMessaging}
	keys := []string{"market_intel", "claims", "decision_layer", "alignment_layer", "strategy_layer",
		"status_quo", "main_competitor", "objection_handling", "core_message", "value_pillars", "other"}

	rapid.Check(t, func(rt *rapid.T) {
		stage := rapid.SampledFrom(stages).Draw(rt, "stage")
		doc := map[string]any{}
		for _, k := range rapid.SliceOfDistinct(rapid.SampledFrom(keys), rapid.ID[string]).Draw(rt, "keys") {
			switch rapid.IntRange(0, 3).Draw(rt, "kind") {
			case 0:
				doc[k] = map[string]any{"claims": []any{}}
			case 1:
				doc[k] = []any{"x"}
			case 2:
				doc[k] = "text"
			default:
				doc[k] = float64(1)
			}
		}
		before, _ := json.Marshal(doc)

		first := ValidateStage(doc, stage)
		second := ValidateStage(doc, stage)
		after, _ := json.Marshal(doc)

		if first.Valid != second.Valid || len(first.MissingKeys) != len(second.MissingKeys) {
			rt.Fatalf("results differ: %+v vs %+v", first, second)
		}
		for i := range first.MissingKeys {
			if first.MissingKeys[i] != second.MissingKeys[i] {
				rt.Fatalf("missing keys differ: %v vs %v", first.MissingKeys, second.MissingKeys)
			}
		}
		if string(before) != string(after) {
			rt.Fatalf("document modified")
		}
		if first.Valid && len(first.MissingKeys) > 0 {
			rt.Fatalf("valid result with missing keys")
		}
	})
}
