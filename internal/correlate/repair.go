package correlate

import (
	"encoding/json"
	"strings"

	"github.com/quonset/squawkbox/pkg/atc"
)

// extractJSON slices the substring from the first '{' to the last '}',
// discarding any prose the model wrapped around its answer.
func extractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// decodeResult parses a correlation response, defaulting missing keys
// so consumers never see nil slices.
func decodeResult(jsonStr string) (atc.AnalysisResult, error) {
	var res atc.AnalysisResult
	if err := json.Unmarshal([]byte(jsonStr), &res); err != nil {
		return atc.AnalysisResult{}, err
	}
	if res.Correlations == nil {
		res.Correlations = []atc.Correlation{}
	}
	if res.Alerts == nil {
		res.Alerts = []atc.Alert{}
	}
	return res, nil
}

// unmatched counts braces and brackets left open in s, ignoring
// anything inside string literals.
func unmatched(s string) (braces, brackets int) {
	inString := false
	escaped := false
	for _, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
		case r == '{':
			braces++
		case r == '}':
			braces--
		case r == '[':
			brackets++
		case r == ']':
			brackets--
		}
	}
	return braces, brackets
}

// elementTerminators are the spots where a truncated JSON document can
// be safely cut: they all end a complete value.
var elementTerminators = []string{`"}`, `"]`, `},`, `],`, `}`}

// repairTruncated attempts to close a response that hit the token
// ceiling mid-document: trim back to the last complete element, then
// append the missing closers. Valid input passes through unchanged.
func repairTruncated(s string) string {
	braces, brackets := unmatched(s)
	if braces <= 0 && brackets <= 0 {
		return s
	}

	// Cut at the end of the last complete element.
	cut := -1
	for _, term := range elementTerminators {
		if i := strings.LastIndex(s, term); i >= 0 && i+len(term) > cut {
			cut = i + len(term)
		}
	}
	if cut > 0 {
		s = strings.TrimRight(s[:cut], ", \t\n")
	}

	braces, brackets = unmatched(s)
	s += strings.Repeat("]", max(brackets, 0))
	s += strings.Repeat("}", max(braces, 0))
	return s
}
