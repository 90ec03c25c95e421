package pipeline

import (
	"sort"
	"strings"

	"github.com/jonathan/gtm-copilot/internal/types"
)

// DefaultUncertaintyThreshold is the ratio above which assets are blocked.
const DefaultUncertaintyThreshold = 0.30

// Strategy document paths read by the coverage check and the gate.
const (
	pathCoverageMissing = "alignment_layer.input_coverage.missing_fields"
	pathLegacyMissing   = "alignment_layer.missing_fields"
	pathAllowAssets     = "decision_layer.allow_asset_generation"
	pathUncertainty     = "decision_layer.uncertainty_ratio"
	pathDecisions       = "decision_layer.decisions"
)

// Gate is the gating decision for one strategy document.
type Gate struct {
	Allowed bool    `json:"allowed"`
	Ratio   float64 `json:"ratio"`
	// RatioComputed is set when the document did not declare a ratio.
	RatioComputed bool     `json:"ratio_computed,omitempty"`
	Threshold     float64  `json:"threshold"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Blocked       bool     `json:"blocked"`
}

// Err returns a *BlockedError when the gate blocked assets.
func (g *Gate) Err() error {
	if g == nil || !g.Blocked {
		return nil
	}
	return &BlockedError{
		MissingFields: g.MissingFields,
		Ratio:         g.Ratio,
		Threshold:     g.Threshold,
		Disallowed:    !g.Allowed,
	}
}

// CoverageMissing returns the input fields the strategy reports it did not use.
func CoverageMissing(strategy map[string]any) []string {
	if missing := types.LookupStrings(strategy, pathCoverageMissing); len(missing) > 0 {
		return missing
	}
	return types.LookupStrings(strategy, pathLegacyMissing)
}

// Evaluate applies the gating rule. An absent allow flag counts as allowed; a
// flag that is present but not true (bool or "true") counts as disallowed. An
// absent ratio is computed as unvalidated/total decisions, and 1.0 when there
// are no decisions. A declared ratio that is not a number counts as 1.0.
// Assets are blocked iff disallowed or ratio > threshold.
func Evaluate(strategy map[string]any, threshold float64) Gate {
	gate := Gate{Allowed: true, Threshold: threshold}

	if v, ok := types.Lookup(strategy, pathAllowAssets); ok {
		gate.Allowed = allowFlag(v)
	}

	if _, declared := types.Lookup(strategy, pathUncertainty); declared {
		ratio, ok := types.LookupFloat(strategy, pathUncertainty)
		if !ok {
			ratio = 1.0
		}
		gate.Ratio = ratio
	} else {
		gate.Ratio = computedRatio(strategy)
		gate.RatioComputed = true
	}

	gate.Blocked = !gate.Allowed || gate.Ratio > threshold
	if gate.Blocked {
		gate.MissingFields = underCovered(strategy)
	}
	return gate
}

func allowFlag(v any) bool {
	switch flag := v.(type) {
	case bool:
		return flag
	case string:
		return strings.EqualFold(strings.TrimSpace(flag), "true")
	}
	return false
}

func computedRatio(strategy map[string]any) float64 {
	v, ok := types.Lookup(strategy, pathDecisions)
	if !ok {
		return 1.0
	}
	decisions, ok := v.([]any)
	if !ok || len(decisions) == 0 {
		return 1.0
	}
	unvalidated := 0
	for _, d := range decisions {
		obj, _ := d.(map[string]any)
		if validated, _ := obj["validated"].(bool); !validated {
			unvalidated++
		}
	}
	return float64(unvalidated) / float64(len(decisions))
}

// underCovered joins the coverage gaps with the inputs behind unvalidated
// decisions, sorted and de-duplicated.
func underCovered(strategy map[string]any) []string {
	seen := map[string]bool{}
	for _, f := range CoverageMissing(strategy) {
		seen[f] = true
	}
	if v, ok := types.Lookup(strategy, pathDecisions); ok {
		decisions, _ := v.([]any)
		for _, d := range decisions {
			obj, ok := d.(map[string]any)
			if !ok {
				continue
			}
			if validated, _ := obj["validated"].(bool); validated {
				continue
			}
			for _, f := range types.LookupStrings(obj, "input_fields") {
				seen[f] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		if strings.TrimSpace(f) != "" {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
