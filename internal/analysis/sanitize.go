package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/thalloran/vitalog/pkg/models"
)

// Placeholder entries used to pad short insight and recommendation lists.
// Fixed text, never fabricated specifics.
const (
	PlaceholderInsight        = "Not enough data for an additional insight."
	PlaceholderRecommendation = "Log more data to receive an additional recommendation."
)

// ParseStructured extracts a validated StructuredResult from arbitrary
// backend text. It is the sole trust boundary for backend output: pure data
// transformation, no I/O, no shared state, so it can be fuzzed with
// arbitrary strings. ModelID is left empty for the caller to fill in.
func ParseStructured(raw string) (models.StructuredResult, error) {
	text := strings.TrimSpace(raw)
	text = stripFence(text)
	text = stripControlChars(text)

	// Backends add commentary around the object despite instructions;
	// narrow to the outermost brace span before parsing.
	if start := strings.Index(text, "{"); start != -1 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return models.StructuredResult{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	res := models.StructuredResult{
		Summary:          coerceString(obj["summary"]),
		DetailedAnalysis: coerceString(obj["detailed_analysis"]),
		Confidence:       clampConfidence(coerceFloat(obj["confidence"])),
		Insights:         coerceStringList(obj["insights"]),
		Recommendations:  coerceStringList(obj["recommendations"]),
	}
	// Some backends camel-case field names regardless of the schema.
	if res.DetailedAnalysis == "" {
		res.DetailedAnalysis = coerceString(obj["detailedAnalysis"])
	}

	if res.Summary == "" {
		return models.StructuredResult{}, fmt.Errorf("%w: missing summary", ErrValidation)
	}
	if res.DetailedAnalysis == "" {
		return models.StructuredResult{}, fmt.Errorf("%w: missing detailed_analysis", ErrValidation)
	}

	res.Insights = padList(res.Insights, PlaceholderInsight)
	res.Recommendations = padList(res.Recommendations, PlaceholderRecommendation)

	return res, nil
}

// stripFence returns the interior of the first fenced code block, if any.
func stripFence(s string) string {
	start := strings.Index(s, "```")
	if start == -1 {
		return s
	}
	rest := s[start+3:]
	// Skip the fence's language tag line.
	nl := strings.Index(rest, "\n")
	if nl == -1 {
		return s
	}
	rest = rest[nl+1:]
	if end := strings.Index(rest, "```"); end != -1 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// stripControlChars removes non-printable control characters that break JSON
// parsers, keeping ordinary whitespace.
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

func coerceString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// coerceFloat accepts JSON numbers and numeric strings, defaulting to 0.
func coerceFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// clampConfidence maps a 0-100 scale down to 0-1 when the value exceeds 1,
// then clamps into [0, 1].
func clampConfidence(v float64) float64 {
	if v > 1 {
		v = v / 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// coerceStringList keeps string entries (and stringifies bare numbers),
// dropping anything else, capped at ResultListLen.
func coerceStringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if len(out) == models.ResultListLen {
			break
		}
		switch s := item.(type) {
		case string:
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				out = append(out, trimmed)
			}
		case float64:
			out = append(out, strconv.FormatFloat(s, 'g', -1, 64))
		}
	}
	return out
}

// padList pads with the fixed placeholder up to ResultListLen.
func padList(items []string, placeholder string) []string {
	for len(items) < models.ResultListLen {
		items = append(items, placeholder)
	}
	return items
}
