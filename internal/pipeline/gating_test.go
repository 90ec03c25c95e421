package pipeline

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func parse(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name         string
		doc          string
		wantBlocked  bool
		wantAllowed  bool
		wantRatio    float64
		wantComputed bool
	}{
		{
			name:        "declared ratio above threshold",
			doc:         `{"decision_layer": {"allow_asset_generation": true, "uncertainty_ratio": 0.31}}`,
			wantBlocked: true, wantAllowed: true, wantRatio: 0.31,
		},
		{
			name:        "declared ratio below threshold",
			doc:         `{"decision_layer": {"allow_asset_generation": true, "uncertainty_ratio": 0.29}}`,
			wantAllowed: true, wantRatio: 0.29,
		},
		{
			name:        "disallowed with low ratio",
			doc:         `{"decision_layer": {"allow_asset_generation": false, "uncertainty_ratio": 0.05}}`,
			wantBlocked: true, wantRatio: 0.05,
		},
		{
			name:        "string false flag is disallowed",
			doc:         `{"decision_layer": {"allow_asset_generation": "false", "uncertainty_ratio": 0.1}}`,
			wantBlocked: true, wantRatio: 0.1,
		},
		{
			name:        "unrecognised flag is disallowed",
			doc:         `{"decision_layer": {"allow_asset_generation": "no", "uncertainty_ratio": 0.1}}`,
			wantBlocked: true, wantRatio: 0.1,
		},
		{
			name:        "numeric flag is disallowed",
			doc:         `{"decision_layer": {"allow_asset_generation": 1, "uncertainty_ratio": 0.1}}`,
			wantBlocked: true, wantRatio: 0.1,
		},
		{
			name:        "string true flag is allowed",
			doc:         `{"decision_layer": {"allow_asset_generation": " TRUE ", "uncertainty_ratio": 0.1}}`,
			wantAllowed: true, wantRatio: 0.1,
		},
		{
			name:        "string ratio above threshold",
			doc:         `{"decision_layer": {"allow_asset_generation": true, "uncertainty_ratio": "0.45", "decisions": [{"validated": true}]}}`,
			wantBlocked: true, wantAllowed: true, wantRatio: 0.45,
		},
		{
			name:        "unparseable ratio counts as fully uncertain",
			doc:         `{"decision_layer": {"allow_asset_generation": true, "uncertainty_ratio": "low", "decisions": [{"validated": true}]}}`,
			wantBlocked: true, wantAllowed: true, wantRatio: 1.0,
		},
		{
			name:         "ratio computed from decisions",
			doc:          `{"decision_layer": {"decisions": [{"validated": true}, {"validated": true}, {"validated": true}, {"validated": false}]}}`,
			wantAllowed:  true,
			wantRatio:    0.25,
			wantComputed: true,
		},
		{
			name:         "missing validated flag counts as unvalidated",
			doc:          `{"decision_layer": {"decisions": [{"validated": true}, {}]}}`,
			wantBlocked:  true,
			wantAllowed:  true,
			wantRatio:    0.5,
			wantComputed: true,
		},
		{
			name:         "no decision data",
			doc:          `{"decision_layer": {}}`,
			wantBlocked:  true,
			wantAllowed:  true,
			wantRatio:    1.0,
			wantComputed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := Evaluate(parse(t, tt.doc), DefaultUncertaintyThreshold)
			assert.Equal(t, tt.wantBlocked, gate.Blocked)
			assert.Equal(t, tt.wantAllowed, gate.Allowed)
			assert.InDelta(t, tt.wantRatio, gate.Ratio, 1e-9)
			assert.Equal(t, tt.wantComputed, gate.RatioComputed)
			assert.Equal(t, tt.wantBlocked, gate.Err() != nil)
		})
	}
}

func TestGate_Err(t *testing.T) {
	gate := Evaluate(parse(t, `{
		"decision_layer": {"uncertainty_ratio": 0.4},
		"alignment_layer": {"input_coverage": {"missing_fields": ["whereLose"]}}
	}`), 0.3)

	var blocked *BlockedError
	require.True(t, errors.As(gate.Err(), &blocked))
	assert.Equal(t, []string{"whereLose"}, blocked.MissingFields)
	assert.Equal(t, "uncertainty ratio 0.40 exceeds 0.30; under-covered fields: whereLose", blocked.Error())

	var nilGate *Gate
	assert.NoError(t, nilGate.Err())
}

func TestCoverageMissing(t *testing.T) {
	assert.Equal(t, []string{"pricing", "comp2"},
		CoverageMissing(parse(t, `{"alignment_layer": {"input_coverage": {"missing_fields": ["pricing", " comp2 ", ""]}}}`)))
	assert.Equal(t, []string{"timeline"},
		CoverageMissing(parse(t, `{"alignment_layer": {"missing_fields": ["timeline"]}}`)))
	assert.Empty(t, CoverageMissing(parse(t, `{"alignment_layer": {"input_coverage": {"missing_fields": []}}}`)))
	assert.Empty(t, CoverageMissing(nil))
}

func TestEvaluate_BlockedIffRatioAboveThresholdProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ratio := rapid.Float64Range(0, 1).Draw(t, "ratio")
		threshold := rapid.Float64Range(0.01, 1).Draw(t, "threshold")
		allow := rapid.Bool().Draw(t, "allow")

		doc := map[string]any{"decision_layer": map[string]any{
			"uncertainty_ratio":      ratio,
			"allow_asset_generation": allow,
		}}
		gate := Evaluate(doc, threshold)

		want := !allow || ratio > threshold
		if gate.Blocked != want {
			t.Fatalf("ratio %v threshold %v allow %v: blocked=%v", ratio, threshold, allow, gate.Blocked)
		}
	})
}
