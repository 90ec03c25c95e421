package prompts

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jonathan/gtm-copilot/internal/types"
)

// File is the embedded template file for the pipeline stages.
const File = "gtm.json"

// Template keys in File.
const (
	KeyIntel          = "intel"
	KeyStrategy       = "strategy"
	KeyStrategyRepair = "strategy-repair"
	KeyBattlecards    = "battlecards"
	KeyMessaging      = "messaging"
)

// Intel builds the market research prompt.
func Intel(pc types.ProductContext, now time.Time) (string, error) {
	pc = pc.Normalized()
	return Render(File, KeyIntel, map[string]string{
		"GeneratedAt":     now.UTC().Format(time.RFC3339),
		"FormData":        pc.JSON(),
		"Product":         pc.ProductName.String(),
		"Audience":        pc.Audience(),
		"CompetitorsJSON": compactJSON(pc.Competitors()),
	})
}

// Strategy builds the strategy core prompt with intel as evidence.
func Strategy(pc types.ProductContext, intel map[string]any) (string, error) {
	pc = pc.Normalized()
	return Render(File, KeyStrategy, map[string]string{
		"Stage":        pc.Stage.String(),
		"FilledFields": strings.Join(pc.FilledFields(), ", "),
		"FormData":     pc.JSON(),
		"IntelJSON":    indentJSON(intel),
	})
}

// StrategyRepair builds the coverage repair prompt for a strategy that left
// filled inputs unused.
func StrategyRepair(pc types.ProductContext, missing []string, strategy map[string]any) (string, error) {
	pc = pc.Normalized()
	return Render(File, KeyStrategyRepair, map[string]string{
		"MissingFields": compactJSON(missing),
		"FormData":      compactJSON(pc),
		"StrategyJSON":  indentJSON(strategy),
	})
}

// Battlecards builds the battlecards prompt.
func Battlecards(pc types.ProductContext, strategy map[string]any) (string, error) {
	pc = pc.Normalized()
	return Render(File, KeyBattlecards, map[string]string{
		"Product":      pc.ProductName.String(),
		"Audience":     pc.Audience(),
		"Competitors":  strings.Join(pc.Competitors(), ", "),
		"Comp1":        pc.Comp1.String(),
		"WhereLose":    orNone(pc.WhereLose.String()),
		"StrategyJSON": compactJSON(strategy),
	})
}

// Messaging builds the messaging framework prompt.
func Messaging(pc types.ProductContext, strategy map[string]any) (string, error) {
	pc = pc.Normalized()
	return Render(File, KeyMessaging, map[string]string{
		"Product":      pc.ProductName.String(),
		"Audience":     pc.Audience(),
		"StrategyJSON": compactJSON(strategy),
	})
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "null"
	}
	return string(data)
}

func orNone(s string) string {
	if s == "" {
		return "not informed"
	}
	return s
}
