package reviewer

import (
	"fmt"
	"strings"

	"github.com/VAR-META-Tech/intent-verification/internal/constants"
)

// Verdict is the review outcome for one changed file.
type Verdict struct {
	FilePath     string   `json:"file_path" yaml:"file_path"`
	ChangeType   string   `json:"change_type" yaml:"change_type"`
	IsGood       bool     `json:"is_good" yaml:"is_good"`
	Rationale    string   `json:"rationale" yaml:"rationale"`
	Suggestions  string   `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
	Confidence   float64  `json:"confidence" yaml:"confidence"`
	Skipped      bool     `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Error        bool     `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Warnings     []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Analyzed reports whether the file was submitted for review and therefore
// counts toward the analyzed total.
func (v Verdict) Analyzed() bool {
	return !v.Skipped
}

// Analysis is the structured reply for one reviewed block.
type Analysis struct {
	IsGood      bool
	Description string
	Suggestions string
	Confidence  float64
}

// Combine merges block analyses of a split file: the file is good only when
// every block is, confidence is the mean and descriptions are joined in order.
func Combine(analyses []Analysis) Analysis {
	switch len(analyses) {
	case 0:
		return Analysis{}
	case 1:
		return analyses[0]
	}

	combined := Analysis{IsGood: true}
	var descriptions, suggestions []string
	var total float64
	for i, a := range analyses {
		if !a.IsGood {
			combined.IsGood = false
		}
		total += a.Confidence
		descriptions = append(descriptions, fmt.Sprintf("Block %d/%d: %s", i+1, len(analyses), a.Description))
		if a.Suggestions != "" {
			suggestions = append(suggestions, fmt.Sprintf("Block %d/%d: %s", i+1, len(analyses), a.Suggestions))
		}
	}
	combined.Confidence = total / float64(len(analyses))
	combined.Description = strings.Join(descriptions, "\n")
	combined.Suggestions = strings.Join(suggestions, "\n")
	return combined
}

func skippedVerdict(path, changeType, reason string) Verdict {
	return Verdict{
		FilePath:   path,
		ChangeType: changeType,
		IsGood:     true,
		Rationale:  constants.MarkerSkipped + " " + reason,
		Confidence: 1,
		Skipped:    true,
	}
}

func errorVerdict(path, changeType, rationale string, err error) Verdict {
	return Verdict{
		FilePath:     path,
		ChangeType:   changeType,
		IsGood:       false,
		Rationale:    constants.MarkerReviewError + " " + rationale,
		Error:        true,
		ErrorMessage: err.Error(),
	}
}
