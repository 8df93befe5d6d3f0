package analyzer

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/VAR-META-Tech/intent-verification/internal/completion"
	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/reviewer"
	"github.com/VAR-META-Tech/intent-verification/internal/security"
	"github.com/VAR-META-Tech/intent-verification/internal/targets"
)

// fulfilledRatio is the share of changed files that must support the intent.
const fulfilledRatio = 0.5

// IntentRequest names a change set and the test intent it should fulfil.
type IntentRequest struct {
	// TestRepoURL and TestCommit locate the tests. They default to RepoURL
	// and ToCommit.
	TestRepoURL string
	TestCommit  string

	RepoURL    string
	FromCommit string
	ToCommit   string
	Intent     string
}

// IntentResult is the outcome of an intent verification.
type IntentResult struct {
	IsIntentFulfilled bool                  `json:"is_intent_fulfilled" yaml:"is_intent_fulfilled"`
	Confidence        float64               `json:"confidence" yaml:"confidence"`
	Explanation       string                `json:"explanation" yaml:"explanation"`
	OverallAssessment string                `json:"overall_assessment" yaml:"overall_assessment"`
	SupportingFiles   int                   `json:"supporting_files" yaml:"supporting_files"`
	Targets           *targets.Resolved     `json:"targets" yaml:"targets"`
	Files             []reviewer.FileIntent `json:"files_analyzed" yaml:"files_analyzed"`
}

// newIntentResult scores the per-file results. The intent is fulfilled when
// at least one file supports it and supporting files make up at least half
// of the change set.
func newIntentResult(files []reviewer.FileIntent) *IntentResult {
	r := &IntentResult{Files: files}
	if len(files) == 0 {
		r.Explanation = "No files changed between the commits"
		return r
	}

	for _, f := range files {
		if f.SupportsIntent && !f.Error && !f.Skipped {
			r.SupportingFiles++
		}
	}
	ratio := float64(r.SupportingFiles) / float64(len(files))
	r.IsIntentFulfilled = r.SupportingFiles > 0 && ratio >= fulfilledRatio
	r.Confidence = math.Min(ratio*0.7+0.3, 1)
	r.Explanation = fmt.Sprintf("%d out of %d changed files support the test intent", r.SupportingFiles, len(files))
	return r
}

// VerifyIntent checks whether the files changed between req.FromCommit and
// req.ToCommit fulfil req.Intent. The functions and files the intent names
// are read at the test commit and given to the model as context.
//
// Errors follow AnalyzeRepositoryChanges. A failed target extraction is not
// an error: verification goes on without targets.
func (a *Analyzer) VerifyIntent(ctx context.Context, apiKey string, req IntentRequest) (*IntentResult, error) {
	if err := requireArgs(
		argument{"api_key", apiKey},
		argument{"repo_url", req.RepoURL},
		argument{"from_commit", req.FromCommit},
		argument{"to_commit", req.ToCommit},
		argument{"intent", req.Intent},
	); err != nil {
		return nil, err
	}
	if req.TestRepoURL == "" {
		req.TestRepoURL = req.RepoURL
	}
	if req.TestCommit == "" {
		req.TestCommit = req.ToCommit
	}

	start := time.Now()
	logger := a.logger.With("run_id", ulid.Make().String(), "repo", req.RepoURL)
	ctx, cancel := context.WithTimeout(ctx, a.config.Review.CallTimeout)
	defer cancel()

	files, err := a.source.ChangedFiles(ctx, req.RepoURL, req.FromCommit, req.ToCommit)
	if err != nil {
		logger.Error("retrieving changes failed", "from", req.FromCommit, "to", req.ToCommit, "error", err)
		return nil, err
	}
	logger.Info("retrieved changes", "from", req.FromCommit, "to", req.ToCommit, "files", len(files))
	if len(files) == 0 {
		return newIntentResult(nil), nil
	}

	c, err := a.completer(ctx, apiKey, reviewer.IntentSystemPrompt, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := completion.Close(c); err != nil {
			logger.Warn("closing completer", "error", err)
		}
	}()

	rv := reviewer.New(c, reviewer.Options{
		Concurrency:    a.config.Review.Concurrency,
		SplitThreshold: a.config.Review.SplitThreshold,
		Sanitizer:      security.NewSanitizer(a.config.Review.StrictSanitize, logger),
		Logger:         logger,
	})

	resolved, err := a.resolveTargets(ctx, rv, req, logger)
	if err != nil {
		return nil, a.timeoutError(err, logger)
	}

	intent := reviewer.Intent{Statement: req.Intent, Targets: resolved}
	results, err := rv.VerifyIntent(ctx, files, intent)
	if err != nil {
		return nil, a.timeoutError(err, logger)
	}

	result := newIntentResult(results)
	result.Targets = resolved
	result.OverallAssessment, err = rv.Assess(ctx, req.Intent, results)
	if err != nil {
		return nil, a.timeoutError(err, logger)
	}

	logger.Info("intent verification complete",
		"fulfilled", result.IsIntentFulfilled,
		"confidence", result.Confidence,
		"supporting", result.SupportingFiles,
		"total", len(results),
		"duration", time.Since(start))
	return result, nil
}

// resolveTargets extracts the targets of the intent and reads them at the
// test commit. Extraction failures other than a rejected credential leave the
// target list empty.
func (a *Analyzer) resolveTargets(ctx context.Context, rv *reviewer.Reviewer, req IntentRequest, logger *slog.Logger) (*targets.Resolved, error) {
	t, err := rv.ExtractTargets(ctx, req.Intent)
	if err != nil {
		if errors.IsAuth(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("continuing without targets", "error", err)
	}
	if t.Empty() {
		return &targets.Resolved{Targets: t.Normalize(), Functions: []targets.Function{}, Files: []targets.File{}}, nil
	}

	tree, err := a.trees.Tree(ctx, req.TestRepoURL, req.TestCommit)
	if err != nil {
		return nil, err
	}
	resolved, err := targets.Resolve(tree, t)
	if err != nil {
		return nil, err
	}
	logger.Info("resolved targets",
		"functions", len(resolved.Functions),
		"functions_found", resolved.FoundFunctions(),
		"files", len(resolved.Files),
		"files_found", resolved.FoundFiles())
	return resolved, nil
}

func (a *Analyzer) timeoutError(err error, logger *slog.Logger) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("verification exceeded call timeout of %s: %w", a.config.Review.CallTimeout, err)
	}
	logger.Error("intent verification aborted", "error", err)
	return err
}
