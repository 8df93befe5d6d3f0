package reviewer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/security"
)

// defaultConfidence applies when a reply omits its confidence.
const defaultConfidence = 0.5

type analysisJSON struct {
	IsGood      *bool    `json:"is_good"`
	Description string   `json:"description"`
	Suggestions any      `json:"suggestions"`
	Confidence  *float64 `json:"confidence"`
}

// ParseResponse extracts the structured analysis from a model reply. JSON is
// preferred, either bare, fenced or surrounded by prose. Replies that follow
// the VERDICT/REASON marker format are accepted as a fallback.
func ParseResponse(response string) (Analysis, error) {
	if a, ok := parseJSON(extractJSON(response)); ok {
		return a, nil
	}
	if a, ok := parseMarkers(response); ok {
		return a, nil
	}
	return Analysis{}, fmt.Errorf("%w: %s", errors.ErrUnparseableResponse, abbreviate(response, 200))
}

// extractJSON returns the text between the first '{' and the last '}', or the
// input unchanged when there is no such span.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return response
	}
	return response[start : end+1]
}

func parseJSON(text string) (Analysis, bool) {
	var raw analysisJSON
	if err := json.Unmarshal([]byte(text), &raw); err != nil || raw.IsGood == nil {
		return Analysis{}, false
	}

	a := Analysis{
		IsGood:      *raw.IsGood,
		Description: strings.TrimSpace(raw.Description),
		Suggestions: suggestionsText(raw.Suggestions),
		Confidence:  defaultConfidence,
	}
	if raw.Confidence != nil {
		a.Confidence = clampConfidence(*raw.Confidence)
	}
	if a.Description == "" {
		a.Description = "No description provided."
	}
	return a, true
}

func suggestionsText(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case []any:
		var parts []string
		for _, item := range s {
			if text, ok := item.(string); ok && strings.TrimSpace(text) != "" {
				parts = append(parts, strings.TrimSpace(text))
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

func parseMarkers(response string) (Analysis, bool) {
	a := Analysis{Confidence: defaultConfidence}
	found := false

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "VERDICT:") {
			value := strings.ToUpper(markerValue(line))
			switch {
			case strings.HasPrefix(value, "GOOD"):
				a.IsGood, found = true, true
			case strings.HasPrefix(value, "NEEDS_ATTENTION"), strings.HasPrefix(value, "BAD"):
				a.IsGood, found = false, true
			}
		} else if strings.HasPrefix(line, "REASON:") {
			a.Description = markerValue(line)
		} else if strings.HasPrefix(line, "SUGGESTIONS:") {
			a.Suggestions = markerValue(line)
		} else if strings.HasPrefix(line, "CONFIDENCE:") {
			if c, err := strconv.ParseFloat(markerValue(line), 64); err == nil {
				a.Confidence = clampConfidence(c)
			}
		}
	}

	if !found {
		return Analysis{}, false
	}
	if a.Description == "" {
		a.Description = "No description provided."
	}
	return a, true
}

func markerValue(line string) string {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// abbreviate shortens s to at most n bytes without splitting a rune.
func abbreviate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return security.TruncateUTF8(s, n) + "..."
}
