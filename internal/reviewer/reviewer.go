// Package reviewer judges changed files with a completion backend.
package reviewer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/VAR-META-Tech/intent-verification/internal/completion"
	"github.com/VAR-META-Tech/intent-verification/internal/constants"
	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/gitdiff"
	"github.com/VAR-META-Tech/intent-verification/internal/logging"
	"github.com/VAR-META-Tech/intent-verification/internal/security"
)

// Options tunes a Reviewer. Zero values select the defaults.
type Options struct {
	Concurrency    int
	SplitThreshold int
	Sanitizer      *security.Sanitizer
	Logger         *slog.Logger
}

// Reviewer submits changed files to a completion backend and turns the
// replies into verdicts.
type Reviewer struct {
	completer      completion.Completer
	sanitizer      *security.Sanitizer
	concurrency    int
	splitThreshold int
	logger         *slog.Logger
}

// New creates a Reviewer backed by c.
func New(c completion.Completer, opts Options) *Reviewer {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = constants.DefaultConcurrency
	}
	if opts.SplitThreshold <= 0 {
		opts.SplitThreshold = constants.DefaultSplitThreshold
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = security.NewSanitizer(false, opts.Logger)
	}
	return &Reviewer{
		completer:      c,
		sanitizer:      opts.Sanitizer,
		concurrency:    opts.Concurrency,
		splitThreshold: opts.SplitThreshold,
		logger:         opts.Logger.With("component", "reviewer"),
	}
}

// Review judges every file and returns one verdict per file in input order.
// Files are reviewed concurrently. A rejected credential or a cancelled
// context aborts the whole review; any other per-file failure becomes an
// error verdict.
func (r *Reviewer) Review(ctx context.Context, files []gitdiff.FileChange) ([]Verdict, error) {
	verdicts := make([]Verdict, len(files))
	err := r.each(ctx, len(files), func(ctx context.Context, i int) error {
		v, err := r.ReviewFile(ctx, files[i])
		if err != nil {
			return err
		}
		verdicts[i] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return verdicts, nil
}

// each runs fn for indexes 0..n-1 with at most r.concurrency calls in flight.
// The first error cancels the remaining calls and is returned.
func (r *Reviewer) each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}

// ReviewFile judges a single file. Deleted and binary files are skipped
// without contacting the backend.
func (r *Reviewer) ReviewFile(ctx context.Context, file gitdiff.FileChange) (Verdict, error) {
	if !file.Reviewable() {
		return skippedVerdict(file.Path, file.ChangeType, file.NotReviewableReason()), nil
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

	blocks := []string{content.Sanitized}
	if len(content.Sanitized) > r.splitThreshold {
		blocks = splitByFunction(content.Sanitized)
		logger.Debug("split large file", "bytes", len(content.Sanitized), "blocks", len(blocks))
	}

	analyses := make([]Analysis, 0, len(blocks))
	for i, block := range blocks {
		data := promptData{
			Path:       path.Sanitized,
			ChangeType: file.ChangeType,
			Part:       i + 1,
			Total:      len(blocks),
			Block:      block,
		}
		if file.OldPath != "" && file.OldPath != file.Path {
			data.OldPath = r.sanitizer.SanitizePath(file.OldPath).Sanitized
		}
		if len(blocks) == 1 {
			data.Patch = patch.Sanitized
		}

		reply, err := r.completer.Complete(ctx, buildPrompt(data))
		if err != nil {
			if errors.IsAuth(err) {
				return Verdict{}, err
			}
			if ctx.Err() != nil {
				return Verdict{}, ctx.Err()
			}
			reviewErr := &errors.ReviewError{Path: file.Path, Reason: "completion failed", Err: err}
			logger.Warn("review failed", "error", err, "duration", time.Since(start))
			v := errorVerdict(file.Path, file.ChangeType, "completion failed after retries", reviewErr)
			v.Warnings = warnings
			return v, nil
		}

		a, err := ParseResponse(reply)
		if err != nil {
			reviewErr := &errors.ReviewError{Path: file.Path, Reason: "unparseable response", Err: err}
			logger.Warn("review reply could not be parsed", "error", err)
			v := errorVerdict(file.Path, file.ChangeType, "unparseable response: "+strings.TrimSpace(reply), reviewErr)
			v.Warnings = warnings
			return v, nil
		}
		analyses = append(analyses, a)
	}

	a := Combine(analyses)
	logger.Debug("file reviewed", "is_good", a.IsGood, "confidence", a.Confidence, "duration", time.Since(start))
	return Verdict{
		FilePath:    file.Path,
		ChangeType:  file.ChangeType,
		IsGood:      a.IsGood,
		Rationale:   a.Description,
		Suggestions: a.Suggestions,
		Confidence:  a.Confidence,
		Warnings:    warnings,
	}, nil
}
