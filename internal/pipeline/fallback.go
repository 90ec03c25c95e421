package pipeline

import (
	"github.com/jonathan/gtm-copilot/internal/types"
)

// degradedIntel stands in for market intel that could not be produced. The
// strategy stage runs on the form inputs alone.
func degradedIntel(reason string) map[string]any {
	return map[string]any{
		"market_intel": map[string]any{"claims": []any{}},
		"degraded":     true,
		"note":         "market intelligence unavailable (" + reason + "); strategy is based on form inputs only",
	}
}

func fallbackBattlecards(pc types.ProductContext) map[string]any {
	competitor := pc.Comp1.String()
	if competitor == "" {
		competitor = "Main competitor"
	}
	return map[string]any{
		"status_quo": map[string]any{
			"enemy":             "Status Quo",
			"why_it_feels_safe": "Familiar",
			"why_it_fails":      "Inefficient",
			"our_counter":       "Automation",
		},
		"main_competitor": map[string]any{
			"competitor":       competitor,
			"their_strength":   "Established brand",
			"their_blind_spot": "Operational complexity",
			"our_advantage":    "Radical simplicity",
		},
		"objection_handling": []any{
			map[string]any{
				"objection": "We have no budget",
				"answer":    "The cost of not acting is 10x higher in churn",
			},
		},
	}
}

func fallbackMessaging(pc types.ProductContext) map[string]any {
	product := pc.ProductName.String()
	return map[string]any{
		"core_message":       product + ": less churn, more revenue",
		"sub_headline":       "Retain the customers you already won",
		"problem_statement":  "Churn erodes recurring revenue faster than sales can replace it",
		"solution_statement": product + " surfaces at-risk accounts early enough to act",
		"value_pillars": []any{
			map[string]any{"pillar": "Retention", "proof": "Fewer lost accounts"},
		},
	}
}

func fallbackFor(stage types.Stage, pc types.ProductContext) map[string]any {
	switch stage {
	case types.StageBattlecards:
		return fallbackBattlecards(pc)
	case types.StageMessaging:
		return fallbackMessaging(pc)
	}
	return map[string]any{}
}
