// Package quality runs advisory heuristic rules over validated stage documents.
// Findings are warnings only and never change the outcome of a run.
package quality

import (
	"fmt"
	"slices"

	"github.com/jonathan/gtm-copilot/internal/types"
)

// Report is the ordered list of warnings for one document.
type Report struct {
	Stage    types.Stage `json:"stage"`
	Warnings []string    `json:"warnings,omitempty"`
}

// Empty reports whether the audit found nothing.
func (r Report) Empty() bool {
	return len(r.Warnings) == 0
}

// Rule is one named check. Check returns the locations that violate it; each
// becomes a warning "<Name>: <Message> (<location>)".
type Rule struct {
	Name    string
	Message string
	// Stages the rule applies to. Empty means every stage.
	Stages []types.Stage
	Check  func(doc map[string]any) []string
}

// Applies reports whether the rule runs for stage.
func (r Rule) Applies(stage types.Stage) bool {
	return len(r.Stages) == 0 || slices.Contains(r.Stages, stage.SchemaStage())
}

// Auditor applies a fixed rule set.
type Auditor struct {
	rules []Rule
}

// NewAuditor creates an auditor over rules, applied in order.
func NewAuditor(rules ...Rule) *Auditor {
	return &Auditor{rules: rules}
}

// DefaultAuditor returns an auditor with DefaultRules.
func DefaultAuditor(th Thresholds) *Auditor {
	return NewAuditor(DefaultRules(th)...)
}

// Rules returns the names of the configured rules.
func (a *Auditor) Rules() []string {
	names := make([]string, 0, len(a.rules))
	for _, r := range a.rules {
		names = append(names, r.Name)
	}
	return names
}

// Audit runs every applicable rule against doc. A rule that panics is reported
// as a warning and the remaining rules still run.
func (a *Auditor) Audit(doc map[string]any, stage types.Stage) Report {
	report := Report{Stage: stage}
	if doc == nil {
		return report
	}
	for _, rule := range a.rules {
		if !rule.Applies(stage) || rule.Check == nil {
			continue
		}
		report.Warnings = append(report.Warnings, runRule(rule, doc)...)
	}
	return report
}

func runRule(rule Rule, doc map[string]any) (warnings []string) {
	defer func() {
		if r := recover(); r != nil {
			warnings = []string{fmt.Sprintf("%s: rule failed (%v)", rule.Name, r)}
		}
	}()
	for _, loc := range rule.Check(doc) {
		warnings = append(warnings, fmt.Sprintf("%s: %s (%s)", rule.Name, rule.Message, loc))
	}
	return warnings
}
