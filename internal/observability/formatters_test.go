package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/gtm-copilot/internal/pipeline"
	"github.com/jonathan/gtm-copilot/internal/types"
)

func TestPrintRunSummary_Blocked(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	started := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	run := &pipeline.Run{
		ID:          uuid.New(),
		Status:      pipeline.StatusBlocked,
		Input:       types.ProductContext{ProductName: "Churn Buster AI"},
		StartedAt:   started,
		CompletedAt: started.Add(1500 * time.Millisecond),
		Gate: &pipeline.Gate{
			Allowed:       true,
			Ratio:         0.5,
			RatioComputed: true,
			Threshold:     0.3,
			MissingFields: []string{"churnRate", "pricing"},
			Blocked:       true,
		},
		Intel: &types.Document{Stage: types.StageIntel, Degraded: true},
	}

	p.PrintRunSummary(run)
	output := buf.String()

	assert.Contains(t, output, "RUN BLOCKED")
	assert.Contains(t, output, "Churn Buster AI")
	assert.Contains(t, output, "1.5s")
	assert.Contains(t, output, "Uncertainty: 0.50 (computed, limit 0.30)")
	assert.Contains(t, output, "churnRate")
	assert.Contains(t, output, "Fallback documents: intel")
}

func TestPrintRunSummary_FailedShowsDiagnostic(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintRunSummary(&pipeline.Run{
		Status:     pipeline.StatusFailed,
		Diagnostic: "check API credentials (HTTP 401)",
	})

	assert.Contains(t, buf.String(), "RUN FAILED")
	assert.Contains(t, buf.String(), "check API credentials (HTTP 401)")
}

func TestPrintNil(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRunSummary(nil)
	p.PrintIntel(nil)
	p.PrintStrategy(nil)
	p.PrintBattlecards(nil)
	p.PrintMessaging(nil)
	p.PrintTrail(nil)

	assert.Empty(t, buf.String())
}

func TestPrintIntel(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	claims := []any{}
	for i := 0; i < 7; i++ {
		claims = append(claims, map[string]any{
			"statement":  "Churn averaged 12% in 2025",
			"confidence": 0.7,
			"source":     "ABES",
		})
	}
	p.PrintIntel(&types.Document{
		Stage: types.StageIntel,
		Data:  map[string]any{"market_intel": map[string]any{"claims": claims}},
	})
	output := buf.String()

	assert.Contains(t, output, "MARKET INTEL")
	assert.Contains(t, output, "Claims: 7")
	assert.Contains(t, output, "confidence 0.70")
	assert.Contains(t, output, "... and 2 more claims")
}

func TestPrintIntel_Degraded(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintIntel(&types.Document{
		Stage:    types.StageIntel,
		Degraded: true,
		Data:     map[string]any{"note": "market intelligence unavailable"},
	})

	assert.Contains(t, buf.String(), "MARKET INTEL (unavailable)")
	assert.Contains(t, buf.String(), "market intelligence unavailable")
}

func TestPrintStrategy(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintStrategy(&types.Document{
		Stage: types.StageStrategy,
		Data: map[string]any{
			"strategy_layer": map[string]any{"financial_justification": "Save R$ 150k"},
			"decision_layer": map[string]any{
				"decisions": []any{
					map[string]any{"decision": "Lead with mid-market", "validated": true},
					map[string]any{"decision": "Price per seat", "validated": false},
				},
			},
			"alignment_layer": map[string]any{
				"input_coverage": map[string]any{"missing_fields": []any{"nrrTarget"}},
			},
		},
		Warnings: []string{"w1"},
	})
	output := buf.String()

	assert.Contains(t, output, "Save R$ 150k")
	assert.Contains(t, output, "✓ Lead with mid-market")
	assert.Contains(t, output, "? Price per seat")
	assert.Contains(t, output, "nrrTarget")
	assert.Contains(t, output, "Quality warnings: 1")
}

func TestPrintAssets(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintBattlecards(&types.Document{
		Stage:    types.StageBattlecards,
		Degraded: true,
		Data: map[string]any{
			"status_quo":      map[string]any{"enemy": "Status Quo"},
			"main_competitor": map[string]any{"competitor": "Gainsight"},
			"objection_handling": []any{
				map[string]any{"objection": "We have no budget"},
			},
		},
	})
	p.PrintMessaging(&types.Document{
		Stage: types.StageMessaging,
		Data: map[string]any{
			"core_message":  "Stop churn 90 days early",
			"value_pillars": []any{map[string]any{"pillar": "Speed", "proof": "7 days"}},
		},
	})
	output := buf.String()

	assert.Contains(t, output, "BATTLECARDS (fallback)")
	assert.Contains(t, output, "Gainsight")
	assert.Contains(t, output, "We have no budget")
	assert.Contains(t, output, "MESSAGING")
	assert.NotContains(t, output, "MESSAGING (fallback)")
	assert.Contains(t, output, "Speed: 7 days")
}

func TestPrintTrail(t *testing.T) {
	var buf bytes.Buffer
	trail := pipeline.NewTrail()
	trail.Append(types.StagePipeline, types.SeverityInfo, "run started")
	trail.Append(types.StageBattlecards, types.SeverityWarn, "battlecards failed, using fallback")

	NewPrinter(&buf).PrintTrail(trail.Entries())
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[pipeline] run started")
	assert.Contains(t, lines[1], "! [battlecards]")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ação ...", truncate("ação ação ação", 8))
	long := strings.Repeat("x", 100)
	var buf bytes.Buffer
	NewPrinter(&buf).printBox("T", long)
	assert.Contains(t, buf.String(), "...")
	assert.NotContains(t, buf.String(), long)
}
