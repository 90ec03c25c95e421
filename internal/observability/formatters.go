// Package observability provides formatted output for the CLI: boxed
// summaries of a run and its documents.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonathan/gtm-copilot/internal/pipeline"
	"github.com/jonathan/gtm-copilot/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRunSummary outputs status, timing and the gate of a finished run.
func (p *Printer) PrintRunSummary(run *pipeline.Run) {
	if run == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:      %s\n", run.ID))
	sb.WriteString(fmt.Sprintf("Product:  %s\n", run.Input.ProductName.String()))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", run.Status))
	if !run.CompletedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Duration: %s\n", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond)))
	}
	if run.Diagnostic != "" {
		sb.WriteString(fmt.Sprintf("\n%s\n", run.Diagnostic))
	}

	if g := run.Gate; g != nil {
		sb.WriteString("\n")
		source := "reported"
		if g.RatioComputed {
			source = "computed"
		}
		sb.WriteString(fmt.Sprintf("Uncertainty: %.2f (%s, limit %.2f)\n", g.Ratio, source, g.Threshold))
		sb.WriteString(fmt.Sprintf("Assets allowed by strategy: %t\n", g.Allowed))
		if len(g.MissingFields) > 0 {
			sb.WriteString("Under-covered fields:\n")
			writeList(&sb, g.MissingFields, maxItemsToShow)
		}
	}

	var degraded []string
	for _, doc := range run.Documents() {
		if doc.Degraded {
			degraded = append(degraded, string(doc.Stage))
		}
	}
	if len(degraded) > 0 {
		sb.WriteString(fmt.Sprintf("\nFallback documents: %s\n", strings.Join(degraded, ", ")))
	}

	title := "RUN " + strings.ToUpper(string(run.Status))
	switch run.Status {
	case pipeline.StatusSucceeded:
		title = "✅ " + title
	case pipeline.StatusBlocked:
		title = "⛔ " + title
	case pipeline.StatusFailed:
		title = "❌ " + title
	}
	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintIntel outputs the market claims with their confidence and source.
func (p *Printer) PrintIntel(doc *types.Document) {
	if doc == nil {
		return
	}
	if doc.Degraded {
		p.printBox("MARKET INTEL (unavailable)", types.LookupString(doc.Data, "note"))
		return
	}

	claims := objects(doc.Data, "market_intel.claims")
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Claims: %d\n", len(claims)))
	count := min(len(claims), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString("\n")
		claim := claims[i]
		sb.WriteString(fmt.Sprintf("• %s\n", text(claim["statement"])))
		if conf, ok := claim["confidence"].(float64); ok {
			sb.WriteString(fmt.Sprintf("  confidence %.2f", conf))
		}
		if src := text(claim["source"]); src != "" {
			sb.WriteString(fmt.Sprintf("  [%s]", src))
		}
		sb.WriteString("\n")
	}
	if len(claims) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more claims", len(claims)-maxItemsToShow))
	}

	p.printBox("MARKET INTEL", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintStrategy outputs the decisions and the coverage of the strategy.
func (p *Printer) PrintStrategy(doc *types.Document) {
	if doc == nil {
		return
	}

	var sb strings.Builder
	if fj := types.LookupString(doc.Data, "strategy_layer.financial_justification"); fj != "" {
		sb.WriteString(fmt.Sprintf("Financial case: %s\n\n", fj))
	}

	decisions := objects(doc.Data, "decision_layer.decisions")
	sb.WriteString(fmt.Sprintf("Decisions: %d\n", len(decisions)))
	count := min(len(decisions), maxItemsToShow)
	for i := 0; i < count; i++ {
		d := decisions[i]
		mark := "?"
		if v, _ := d["validated"].(bool); v {
			mark = "✓"
		}
		sb.WriteString(fmt.Sprintf("  %s %s\n", mark, text(d["decision"])))
	}
	if len(decisions) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(decisions)-maxItemsToShow))
	}

	if missing := pipeline.CoverageMissing(doc.Data); len(missing) > 0 {
		sb.WriteString("\nMissing inputs:\n")
		writeList(&sb, missing, 3)
	}
	if len(doc.Warnings) > 0 {
		sb.WriteString(fmt.Sprintf("\nQuality warnings: %d\n", len(doc.Warnings)))
	}

	p.printBox("GTM STRATEGY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintBattlecards outputs the enemy, the main competitor and the objections.
func (p *Printer) PrintBattlecards(doc *types.Document) {
	if doc == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Status quo:  %s\n", types.LookupString(doc.Data, "status_quo.enemy")))
	sb.WriteString(fmt.Sprintf("Competitor:  %s\n", types.LookupString(doc.Data, "main_competitor.competitor")))
	if adv := types.LookupString(doc.Data, "main_competitor.our_advantage"); adv != "" {
		sb.WriteString(fmt.Sprintf("Our edge:    %s\n", adv))
	}

	objections := objects(doc.Data, "objection_handling")
	if len(objections) > 0 {
		sb.WriteString("\nObjections:\n")
		count := min(len(objections), 3)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", text(objections[i]["objection"])))
		}
		if len(objections) > 3 {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(objections)-3))
		}
	}

	p.printBox(assetTitle("BATTLECARDS", doc), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintMessaging outputs the core message and the value pillars.
func (p *Printer) PrintMessaging(doc *types.Document) {
	if doc == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s\n", types.LookupString(doc.Data, "core_message")))
	if sub := types.LookupString(doc.Data, "sub_headline"); sub != "" {
		sb.WriteString(fmt.Sprintf("%s\n", sub))
	}

	pillars := objects(doc.Data, "value_pillars")
	if len(pillars) > 0 {
		sb.WriteString("\nPillars:\n")
		for _, pillar := range pillars {
			sb.WriteString(fmt.Sprintf("  • %s", text(pillar["pillar"])))
			if proof := text(pillar["proof"]); proof != "" {
				sb.WriteString(fmt.Sprintf(": %s", proof))
			}
			sb.WriteString("\n")
		}
	}

	p.printBox(assetTitle("MESSAGING", doc), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintTrail outputs the log trail, one line per entry.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintTrail(entries []types.LogEntry) {
	for _, e := range entries {
		marker := " "
		switch e.Severity {
		case types.SeverityWarn:
			marker = "!"
		case types.SeverityError:
			marker = "x"
		}
		fmt.Fprintf(p.out, "%3d %s %s [%s] %s\n", e.Seq, e.Time.Format("15:04:05.000"), marker, e.Stage, e.Message)
	}
}

func assetTitle(title string, doc *types.Document) string {
	if doc.Degraded {
		return title + " (fallback)"
	}
	return title
}

func writeList(sb *strings.Builder, items []string, limit int) {
	count := min(len(items), limit)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("  • %s\n", items[i]))
	}
	if len(items) > limit {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(items)-limit))
	}
}

func objects(data map[string]any, path string) []map[string]any {
	v, ok := types.Lookup(data, path)
	if !ok {
		return nil
	}
	items, _ := v.([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func text(v any) string {
	s, _ := v.(string)
	return s
}
