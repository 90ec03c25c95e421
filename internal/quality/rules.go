package quality

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jonathan/gtm-copilot/internal/types"
)

// Thresholds tune the numeric rules.
type Thresholds struct {
	// Confidence above which a claim or decision needs a citation.
	Confidence float64
	// MinUncertainty below which an uncertainty ratio is implausible.
	MinUncertainty float64
}

// DefaultThresholds returns confidence 0.8 and minimum uncertainty 0.05.
func DefaultThresholds() Thresholds {
	return Thresholds{Confidence: 0.8, MinUncertainty: 0.05}
}

var (
	placeholderPattern = regexp.MustCompile(`(?i)\b(example|placeholder|source name|lorem ipsum|exemplo|tbd)\b`)
	digitPattern       = regexp.MustCompile(`\d`)
	currencyPattern    = regexp.MustCompile(`(?i)(R\$|US\$|\$|€|£|\b(BRL|USD|EUR)\b)`)
	percentPattern     = regexp.MustCompile(`(?i)(%|\bpercent\b|\bpor cento\b)`)
	timeUnitPattern    = regexp.MustCompile(`(?i)\b(days?|weeks?|months?|quarters?|years?|dias?|semanas?|m[eê]s|meses|trimestres?|anos?)\b`)
	comparatorPattern  = regexp.MustCompile(`[<>=≤≥]`)
)

// DefaultRules returns the built-in rule set.
func DefaultRules(th Thresholds) []Rule {
	return []Rule{
		PlaceholderVocabulary(),
		ClaimWithoutNumeral(),
		UnsupportedConfidence(th.Confidence),
		FinancialJustificationTokens(),
		SuccessCriteriaComparators(),
		PlanItemsQuantified(),
		UncertaintyRatioRealism(th.MinUncertainty),
	}
}

// PlaceholderVocabulary flags string values that still read like template text.
func PlaceholderVocabulary() Rule {
	return Rule{
		Name:    "placeholder_vocabulary",
		Message: "value contains placeholder vocabulary",
		Check: func(doc map[string]any) []string {
			var locs []string
			walkStrings(doc, "", func(path, s string) {
				trimmed := strings.TrimSpace(s)
				if strings.EqualFold(trimmed, "string") || placeholderPattern.MatchString(trimmed) {
					locs = append(locs, path)
				}
			})
			return locs
		},
	}
}

// ClaimWithoutNumeral flags market claims with no number in them.
func ClaimWithoutNumeral() Rule {
	return Rule{
		Name:    "claim_without_numeral",
		Message: "claim states no figure",
		Stages:  []types.Stage{types.StageIntel},
		Check: func(doc map[string]any) []string {
			var locs []string
			for i, claim := range objectsAt(doc, "market_intel.claims") {
				statement := firstString(claim, "statement", "claim")
				if statement != "" && !digitPattern.MatchString(statement) {
					locs = append(locs, fmt.Sprintf("market_intel.claims[%d]", i))
				}
			}
			return locs
		},
	}
}

// UnsupportedConfidence flags high-confidence claims and decisions that cite
// nothing.
func UnsupportedConfidence(threshold float64) Rule {
	return Rule{
		Name:    "unsupported_confidence",
		Message: fmt.Sprintf("confidence above %.2f without a citation", threshold),
		Stages:  []types.Stage{types.StageIntel, types.StageStrategy},
		Check: func(doc map[string]any) []string {
			var locs []string
			check := func(base string, items []map[string]any, citationKeys ...string) {
				for i, item := range items {
					conf, ok := types.LookupFloat(item, "confidence")
					if !ok || conf <= threshold {
						continue
					}
					if !hasAny(item, citationKeys...) {
						locs = append(locs, fmt.Sprintf("%s[%d]", base, i))
					}
				}
			}
			check("market_intel.claims", objectsAt(doc, "market_intel.claims"), "source", "source_url", "source_name", "sources")
			check("decision_layer.decisions", objectsAt(doc, "decision_layer.decisions"), "evidence", "intel_claim_ids", "claims_supporting", "source")
			return locs
		},
	}
}

// FinancialJustificationTokens requires currency, percentage and time-unit
// tokens in the financial justification.
func FinancialJustificationTokens() Rule {
	const path = "strategy_layer.financial_justification"
	return Rule{
		Name:    "financial_justification_tokens",
		Message: "financial justification lacks a required token",
		Stages:  []types.Stage{types.StageStrategy},
		Check: func(doc map[string]any) []string {
			v, ok := types.Lookup(doc, path)
			if !ok {
				return []string{path + " absent"}
			}
			text := flatten(v)
			var locs []string
			if !currencyPattern.MatchString(text) {
				locs = append(locs, path+" has no currency")
			}
			if !percentPattern.MatchString(text) {
				locs = append(locs, path+" has no percentage")
			}
			if !timeUnitPattern.MatchString(text) {
				locs = append(locs, path+" has no time unit")
			}
			return locs
		},
	}
}

// SuccessCriteriaComparators requires a comparator in every success criterion.
func SuccessCriteriaComparators() Rule {
	const path = "strategy_layer.success_criteria"
	return Rule{
		Name:    "success_criteria_comparators",
		Message: "success criterion has no comparator",
		Stages:  []types.Stage{types.StageStrategy},
		Check: func(doc map[string]any) []string {
			v, ok := types.Lookup(doc, path)
			if !ok {
				return nil
			}
			items, isList := v.([]any)
			if !isList {
				if !comparatorPattern.MatchString(flatten(v)) {
					return []string{path}
				}
				return nil
			}
			var locs []string
			for i, item := range items {
				if !comparatorPattern.MatchString(flatten(item)) {
					locs = append(locs, fmt.Sprintf("%s[%d]", path, i))
				}
			}
			return locs
		},
	}
}

// PlanItemsQuantified requires a budget or quantity in every 30/60/90 plan item.
func PlanItemsQuantified() Rule {
	const path = "strategy_layer.plan_30_60_90"
	return Rule{
		Name:    "plan_items_quantified",
		Message: "plan item has no budget or quantity",
		Stages:  []types.Stage{types.StageStrategy},
		Check: func(doc map[string]any) []string {
			v, ok := types.Lookup(doc, path)
			if !ok {
				return nil
			}
			windows, ok := v.(map[string]any)
			if !ok {
				return nil
			}
			var locs []string
			for _, window := range sortedKeys(windows) {
				items, ok := windows[window].([]any)
				if !ok {
					continue
				}
				for i, item := range items {
					text := flatten(item)
					if !digitPattern.MatchString(text) && !currencyPattern.MatchString(text) {
						locs = append(locs, fmt.Sprintf("%s.%s[%d]", path, window, i))
					}
				}
			}
			return locs
		},
	}
}

// UncertaintyRatioRealism flags an uncertainty ratio of zero or close to it.
func UncertaintyRatioRealism(minimum float64) Rule {
	const path = "decision_layer.uncertainty_ratio"
	return Rule{
		Name:    "uncertainty_ratio_realism",
		Message: "uncertainty ratio is implausibly low",
		Stages:  []types.Stage{types.StageStrategy},
		Check: func(doc map[string]any) []string {
			ratio, ok := types.LookupFloat(doc, path)
			if !ok {
				return nil
			}
			if ratio == 0 || ratio < minimum {
				return []string{fmt.Sprintf("%s = %.2f", path, ratio)}
			}
			return nil
		},
	}
}

// walkStrings calls fn for every string leaf with its dotted path. Map keys are
// visited in sorted order.
func walkStrings(v any, path string, fn func(path, s string)) {
	switch val := v.(type) {
	case string:
		fn(path, val)
	case map[string]any:
		for _, k := range sortedKeys(val) {
			walkStrings(val[k], joinPath(path, k), fn)
		}
	case []any:
		for i, item := range val {
			walkStrings(item, fmt.Sprintf("%s[%d]", path, i), fn)
		}
	}
}

// flatten joins every string and number leaf of v with spaces.
func flatten(v any) string {
	var parts []string
	var walk func(any)
	walk = func(x any) {
		switch val := x.(type) {
		case string:
			parts = append(parts, val)
		case float64:
			parts = append(parts, fmt.Sprintf("%g", val))
		case map[string]any:
			for _, k := range sortedKeys(val) {
				walk(val[k])
			}
		case []any:
			for _, item := range val {
				walk(item)
			}
		}
	}
	walk(v)
	return strings.Join(parts, " ")
}

func objectsAt(doc map[string]any, path string) []map[string]any {
	v, ok := types.Lookup(doc, path)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		obj, _ := item.(map[string]any)
		// Non-object entries keep their index with an empty object.
		if obj == nil {
			obj = map[string]any{}
		}
		out = append(out, obj)
	}
	return out
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// hasAny reports whether obj has a non-empty value under any of keys.
func hasAny(obj map[string]any, keys ...string) bool {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return true
			}
		case []any:
			if len(v) > 0 {
				return true
			}
		case map[string]any:
			if len(v) > 0 {
				return true
			}
		}
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}
