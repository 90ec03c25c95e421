package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Stage identifies one call-extract-validate step of the pipeline.
type Stage string

// Stage constants
const (
	StageIntel       Stage = "intel"
	StageStrategy    Stage = "strategy"
	StageRepair      Stage = "strategy_repair"
	StageBattlecards Stage = "battlecards"
	StageMessaging   Stage = "messaging"
	StageGating      Stage = "gating"
	StagePipeline    Stage = "pipeline"
)

// SchemaStage returns the stage whose document contract applies. A repaired
// strategy must satisfy the strategy contract.
func (s Stage) SchemaStage() Stage {
	if s == StageRepair {
		return StageStrategy
	}
	return s
}

// AssetStages are generated concurrently once the strategy passes gating.
var AssetStages = []Stage{StageBattlecards, StageMessaging}

// Document is a structured value produced by one stage. It only exists once the
// value has passed the stage's schema, or as that stage's documented fallback
// (Degraded).
type Document struct {
	Stage    Stage          `json:"stage"`
	Data     map[string]any `json:"data"`
	Degraded bool           `json:"degraded,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// JSON renders the document data as indented JSON.
func (d *Document) JSON() string {
	if d == nil || d.Data == nil {
		return "null"
	}
	data, err := json.MarshalIndent(d.Data, "", "  ")
	if err != nil {
		return "null"
	}
	return string(data)
}

// Lookup walks a dotted path ("decision_layer.uncertainty_ratio") through
// nested objects. It returns false when any segment is missing or not an object.
func Lookup(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// LookupString returns the string at path, or "" when absent or not a string.
func LookupString(data map[string]any, path string) string {
	v, ok := Lookup(data, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// LookupFloat returns the number at path. Numeric strings are parsed.
func LookupFloat(data map[string]any, path string) (float64, bool) {
	v, ok := Lookup(data, path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// LookupStrings returns the string elements of the array at path. Non-string
// elements are skipped.
func LookupStrings(data map[string]any, path string) []string {
	v, ok := Lookup(data, path)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
