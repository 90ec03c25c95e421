// Package extract turns raw model text into a JSON object using progressively
// more forgiving parsing tiers.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Tier identifies which parsing strategy produced a document.
type Tier int

// Tier constants, in the order they are tried.
const (
	TierNone Tier = iota
	TierDirect
	TierSliced
	TierScanned
	TierSanitized
)

func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierSliced:
		return "sliced"
	case TierScanned:
		return "scanned"
	case TierSanitized:
		return "sanitized"
	}
	return "none"
}

// SnippetLength caps the raw text kept on an ExtractionError, in runes.
const SnippetLength = 120

// ExtractionError means no tier produced a JSON object.
type ExtractionError struct {
	Message string
	Snippet string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction error: %s: %v (snippet: %q)", e.Message, e.Cause, e.Snippet)
	}
	return fmt.Sprintf("extraction error: %s (snippet: %q)", e.Message, e.Snippet)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

var (
	fenceMarker  = regexp.MustCompile("```[A-Za-z0-9_-]*")
	objectStart  = regexp.MustCompile(`\{\s*"`)
	controlChars = regexp.MustCompile(`[\x00-\x1F]+`)
)

// Extract returns the first JSON object recoverable from raw.
func Extract(raw string) (map[string]any, error) {
	doc, _, err := ExtractWithTier(raw)
	return doc, err
}

// ExtractWithTier is Extract that also reports the tier that succeeded.
func ExtractWithTier(raw string) (doc map[string]any, tier Tier, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, tier = nil, TierNone
			err = &ExtractionError{Message: fmt.Sprintf("unexpected failure: %v", r), Snippet: Snippet(raw)}
		}
	}()

	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, TierNone, &ExtractionError{Message: "empty text", Snippet: ""}
	}

	// Tier 1: the whole text.
	parsed, lastErr := parseObject(text)
	if lastErr == nil {
		return parsed, TierDirect, nil
	}

	// Tier 2: fences removed, first '{' to last '}'.
	stripped := StripFences(text)
	sliced := sliceBraces(stripped)
	if sliced != "" {
		if parsed, lastErr = parseObject(sliced); lastErr == nil {
			return parsed, TierSliced, nil
		}
	}

	// Tier 3: balanced spans starting at `{"`.
	spans := balancedSpans(stripped)
	for _, span := range spans {
		if parsed, perr := parseObject(span); perr == nil {
			return parsed, TierScanned, nil
		}
	}

	// Tier 4: control characters collapsed in the tier 2 and 3 candidates.
	candidates := make([]string, 0, len(spans)+1)
	if sliced != "" {
		candidates = append(candidates, sliced)
	}
	candidates = append(candidates, spans...)
	for _, c := range candidates {
		if parsed, perr := parseObject(Sanitize(c)); perr == nil {
			return parsed, TierSanitized, nil
		}
	}

	if sliced == "" && len(spans) == 0 {
		return nil, TierNone, &ExtractionError{Message: "no JSON object found", Snippet: Snippet(raw)}
	}
	return nil, TierNone, &ExtractionError{Message: "no candidate parsed as a JSON object", Snippet: Snippet(raw), Cause: lastErr}
}

// StripFences removes markdown code-fence markers and their language tags.
func StripFences(text string) string {
	return strings.TrimSpace(fenceMarker.ReplaceAllString(text, ""))
}

// Sanitize replaces each run of control characters with a single space.
func Sanitize(text string) string {
	return controlChars.ReplaceAllString(text, " ")
}

// Snippet returns the first SnippetLength runes of the trimmed text.
func Snippet(raw string) string {
	s := strings.TrimSpace(raw)
	if utf8.RuneCountInString(s) <= SnippetLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:SnippetLength])
}

func parseObject(s string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top-level value is %T, not an object", v)
	}
	return obj, nil
}

func sliceBraces(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// balancedSpans returns, in order of appearance, every substring that starts at
// an object opening `{"` and ends at its matching brace. Braces inside string
// literals are ignored.
func balancedSpans(text string) []string {
	var spans []string
	for _, loc := range objectStart.FindAllStringIndex(text, -1) {
		if end := matchBrace(text, loc[0]); end > 0 {
			spans = append(spans, text[loc[0]:end+1])
		}
	}
	return spans
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
