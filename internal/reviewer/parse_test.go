package reviewer

import (
	stderrors "errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VAR-META-Tech/intent-verification/internal/errors"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Analysis
	}{
		{
			name:     "bare json",
			response: `{"is_good": true, "description": "Adds a helper", "suggestions": null, "confidence": 0.9}`,
			want:     Analysis{IsGood: true, Description: "Adds a helper", Confidence: 0.9},
		},
		{
			name:     "fenced json with prose",
			response: "Here is my review:\n```json\n{\"is_good\": false, \"description\": \"Leaks a file handle\", \"suggestions\": \"Close the file\", \"confidence\": 0.7}\n```\nThanks!",
			want:     Analysis{IsGood: false, Description: "Leaks a file handle", Suggestions: "Close the file", Confidence: 0.7},
		},
		{
			name:     "suggestion list and missing confidence",
			response: `{"is_good": true, "description": "ok", "suggestions": ["rename x", "", "add test"]}`,
			want:     Analysis{IsGood: true, Description: "ok", Suggestions: "rename x\nadd test", Confidence: defaultConfidence},
		},
		{
			name:     "confidence clamped",
			response: `{"is_good": true, "description": "fine", "confidence": 7}`,
			want:     Analysis{IsGood: true, Description: "fine", Confidence: 1},
		},
		{
			name:     "missing description",
			response: `{"is_good": false}`,
			want:     Analysis{IsGood: false, Description: "No description provided.", Confidence: defaultConfidence},
		},
		{
			name:     "marker fallback",
			response: "VERDICT: NEEDS_ATTENTION\nREASON: SQL built by concatenation\nSUGGESTIONS: use placeholders\nCONFIDENCE: 0.8",
			want:     Analysis{IsGood: false, Description: "SQL built by concatenation", Suggestions: "use placeholders", Confidence: 0.8},
		},
		{
			name:     "marker good",
			response: "  VERDICT: GOOD\n  REASON: tidy refactor",
			want:     Analysis{IsGood: true, Description: "tidy refactor", Confidence: defaultConfidence},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.response)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResponseRejectsUnstructuredText(t *testing.T) {
	for _, response := range []string{
		"The code looks fine to me.",
		`{"description": "no verdict field"}`,
		"{ not json }",
		"No response.",
	} {
		_, err := ParseResponse(response)
		require.Error(t, err, response)
		assert.True(t, stderrors.Is(err, errors.ErrUnparseableResponse))
	}
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":{"b":1}}`, extractJSON(`prefix {"a":{"b":1}} suffix`))
	assert.Equal(t, "no braces", extractJSON("no braces"))
	assert.Equal(t, "} reversed {", extractJSON("} reversed {"))
}

func TestCombine(t *testing.T) {
	got := Combine([]Analysis{
		{IsGood: true, Description: "first", Confidence: 0.9},
		{IsGood: false, Description: "second", Suggestions: "fix it", Confidence: 0.5},
	})
	assert.False(t, got.IsGood)
	assert.InDelta(t, 0.7, got.Confidence, 1e-9)
	assert.Equal(t, "Block 1/2: first\nBlock 2/2: second", got.Description)
	assert.Equal(t, "Block 2/2: fix it", got.Suggestions)

	single := Analysis{IsGood: true, Description: "only", Confidence: 0.4}
	assert.Equal(t, single, Combine([]Analysis{single}))

	allGood := Combine([]Analysis{{IsGood: true, Confidence: 1}, {IsGood: true, Confidence: 0}})
	assert.True(t, allGood.IsGood)
}

func TestAbbreviateKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("x", 199) + "éé"
	got := abbreviate(s, 200)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("x", 199)+"...", got)
	assert.Equal(t, "short", abbreviate("  short  ", 200))
}
