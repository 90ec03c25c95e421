package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/gtm-copilot/internal/extract"
	"github.com/jonathan/gtm-copilot/internal/llm"
	"github.com/jonathan/gtm-copilot/internal/schemas"
)

// RepairExhausted reports a coverage repair that did not produce a valid
// strategy. It is never fatal; the original strategy is kept.
type RepairExhausted struct {
	MissingFields []string
	Cause         error
}

func (e *RepairExhausted) Error() string {
	return fmt.Sprintf("strategy repair for %s failed, keeping original: %v",
		strings.Join(e.MissingFields, ", "), e.Cause)
}

func (e *RepairExhausted) Unwrap() error {
	return e.Cause
}

// BlockedError is the gating outcome that stops asset generation. It is a
// business result, not a technical fault.
type BlockedError struct {
	MissingFields []string
	Ratio         float64
	Threshold     float64
	Disallowed    bool
}

func (e *BlockedError) Error() string {
	var b strings.Builder
	if e.Disallowed {
		b.WriteString("asset generation disallowed by strategy")
	} else {
		fmt.Fprintf(&b, "uncertainty ratio %.2f exceeds %.2f", e.Ratio, e.Threshold)
	}
	if len(e.MissingFields) > 0 {
		fmt.Fprintf(&b, "; under-covered fields: %s", strings.Join(e.MissingFields, ", "))
	}
	return b.String()
}

// Diagnostic messages returned by Diagnose.
const (
	DiagnosticCredentials = "check API credentials"
	DiagnosticTransient   = "temporary service problem, retry shortly"
	DiagnosticUnusable    = "model returned an unusable document"
	DiagnosticInput       = "missing required inputs"
)

// Diagnose returns a short user-facing description of err. Credential and
// request problems (4xx) are told apart from transient ones (429, 5xx,
// network).
func Diagnose(err error) string {
	if err == nil {
		return ""
	}

	var httpErr *llm.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Status == 429 || httpErr.Status >= 500:
			return fmt.Sprintf("%s (HTTP %d)", DiagnosticTransient, httpErr.Status)
		case httpErr.Status >= 400:
			return fmt.Sprintf("%s (HTTP %d)", DiagnosticCredentials, httpErr.Status)
		default:
			return fmt.Sprintf("unexpected response (HTTP %d)", httpErr.Status)
		}
	}

	var transportErr *llm.TransportError
	if errors.As(err, &transportErr) {
		return DiagnosticTransient + " (network)"
	}

	var (
		emptyErr   *llm.EmptyResponseError
		extractErr *extract.ExtractionError
		schemaErr  *schemas.SchemaError
	)
	switch {
	case errors.As(err, &emptyErr):
		return DiagnosticUnusable + " (empty response)"
	case errors.As(err, &extractErr):
		return DiagnosticUnusable + " (not JSON)"
	case errors.As(err, &schemaErr):
		return fmt.Sprintf("%s (missing %s)", DiagnosticUnusable, strings.Join(schemaErr.MissingKeys, ", "))
	}

	return err.Error()
}
