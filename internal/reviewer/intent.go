package reviewer

import (
	"context"
	"strings"
	"time"

	"github.com/VAR-META-Tech/intent-verification/internal/constants"
	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/gitdiff"
	"github.com/VAR-META-Tech/intent-verification/internal/targets"
)

// FileIntent is the judgement of one changed file against a test intent.
type FileIntent struct {
	FilePath        string   `json:"file_path" yaml:"file_path"`
	ChangeType      string   `json:"change_type" yaml:"change_type"`
	SupportsIntent  bool     `json:"supports_intent" yaml:"supports_intent"`
	Reasoning       string   `json:"reasoning" yaml:"reasoning"`
	RelevantChanges []string `json:"relevant_changes,omitempty" yaml:"relevant_changes,omitempty"`
	Confidence      float64  `json:"confidence" yaml:"confidence"`
	Skipped         bool     `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Error           bool     `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Warnings        []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Intent is what a change set is expected to achieve: the user's statement
// and the code of the targets it names.
type Intent struct {
	Statement string
	Targets   *targets.Resolved
}

// ExtractTargets asks the backend which functions and files the intent names.
func (r *Reviewer) ExtractTargets(ctx context.Context, intent string) (targets.Targets, error) {
	sanitized := r.sanitizer.SanitizeContent(intent, "intent")
	reply, err := r.completer.Complete(ctx, targetsPrompt(sanitized.Sanitized))
	if err != nil {
		return targets.Targets{}, err
	}
	t, err := ParseTargets(reply)
	if err != nil {
		return targets.Targets{}, &errors.ReviewError{Path: "intent", Reason: "target extraction", Err: err}
	}
	r.logger.Debug("extracted targets", "functions", t.Functions, "files", t.Files)
	return t, nil
}

// VerifyIntent judges every file against intent and returns one result per
// file in input order. Failure handling matches Review.
func (r *Reviewer) VerifyIntent(ctx context.Context, files []gitdiff.FileChange, intent Intent) ([]FileIntent, error) {
	statement := r.sanitizer.SanitizeContent(intent.Statement, "intent")
	code := r.sanitizer.SanitizeContent(targetContext(intent.Targets), "targets")
	base := intentPromptData{Intent: statement.Sanitized, Context: code.Sanitized}

	results := make([]FileIntent, len(files))
	err := r.each(ctx, len(files), func(ctx context.Context, i int) error {
		res, err := r.verifyFile(ctx, files[i], base)
		if err != nil {
			return err
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Reviewer) verifyFile(ctx context.Context, file gitdiff.FileChange, data intentPromptData) (FileIntent, error) {
	if !file.Reviewable() {
		return FileIntent{
			FilePath:   file.Path,
			ChangeType: file.ChangeType,
			Reasoning:  constants.MarkerSkipped + " " + file.NotReviewableReason(),
			Confidence: 1,
			Skipped:    true,
		}, nil
	}

	start := time.Now()
	logger := r.logger.With("path", file.Path, "change_type", file.ChangeType)

	path := r.sanitizer.SanitizePath(file.Path)
	content := r.sanitizer.SanitizeContent(file.Content, file.Path)
	patch := r.sanitizer.SanitizePatch(file.Patch, file.Path)

	var warnings []string
	warnings = append(warnings, path.ThreatDetails...)
	warnings = append(warnings, content.ThreatDetails...)
	warnings = append(warnings, patch.ThreatDetails...)

	data.Path = path.Sanitized
	data.ChangeType = file.ChangeType
	data.Content = content.Sanitized
	data.Patch = patch.Sanitized
	if file.OldPath != "" && file.OldPath != file.Path {
		data.OldPath = r.sanitizer.SanitizePath(file.OldPath).Sanitized
	}

	failed := func(rationale string, err error) FileIntent {
		return FileIntent{
			FilePath:     file.Path,
			ChangeType:   file.ChangeType,
			Reasoning:    constants.MarkerReviewError + " " + rationale,
			Error:        true,
			ErrorMessage: err.Error(),
			Warnings:     warnings,
		}
	}

	reply, err := r.completer.Complete(ctx, buildIntentPrompt(data))
	if err != nil {
		if errors.IsAuth(err) {
			return FileIntent{}, err
		}
		if ctx.Err() != nil {
			return FileIntent{}, ctx.Err()
		}
		logger.Warn("intent check failed", "error", err, "duration", time.Since(start))
		return failed("completion failed after retries",
			&errors.ReviewError{Path: file.Path, Reason: "completion failed", Err: err}), nil
	}

	a, err := ParseIntentResponse(reply)
	if err != nil {
		logger.Warn("intent reply could not be parsed", "error", err)
		return failed("unparseable response: "+strings.TrimSpace(reply),
			&errors.ReviewError{Path: file.Path, Reason: "unparseable response", Err: err}), nil
	}

	logger.Debug("intent checked", "supports_intent", a.SupportsIntent, "confidence", a.Confidence, "duration", time.Since(start))
	return FileIntent{
		FilePath:        file.Path,
		ChangeType:      file.ChangeType,
		SupportsIntent:  a.SupportsIntent,
		Reasoning:       a.Reasoning,
		RelevantChanges: a.RelevantChanges,
		Confidence:      a.Confidence,
		Warnings:        warnings,
	}, nil
}

// Assess asks the backend for an overall assessment of the results. Only a
// rejected credential or a cancelled context is returned as an error; other
// failures yield a fallback text.
func (r *Reviewer) Assess(ctx context.Context, intent string, results []FileIntent) (string, error) {
	statement := r.sanitizer.SanitizeContent(intent, "intent")
	reply, err := r.completer.Complete(ctx, buildAssessmentPrompt(statement.Sanitized, results))
	if err != nil {
		if errors.IsAuth(err) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		r.logger.Warn("overall assessment failed", "error", err)
		return "Overall assessment unavailable: " + err.Error(), nil
	}
	return strings.TrimSpace(reply), nil
}
