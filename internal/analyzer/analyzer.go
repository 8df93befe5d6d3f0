// Package analyzer provides repository change analysis functionality.
// It coordinates the diff source and the AI reviewer to decide whether the
// files changed between two commits are good, and aggregates the verdicts
// into a single result.
package analyzer

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/VAR-META-Tech/intent-verification/internal/completion"
	"github.com/VAR-META-Tech/intent-verification/internal/config"
	"github.com/VAR-META-Tech/intent-verification/internal/constants"
	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/gitdiff"
	githubAPI "github.com/VAR-META-Tech/intent-verification/internal/github"
	"github.com/VAR-META-Tech/intent-verification/internal/logging"
	"github.com/VAR-META-Tech/intent-verification/internal/retry"
	"github.com/VAR-META-Tech/intent-verification/internal/reviewer"
	"github.com/VAR-META-Tech/intent-verification/internal/security"
)

// CompleterFactory builds a completer for one call from the caller's credential.
type CompleterFactory func(ctx context.Context, provider, apiKey string, opts completion.Options) (completion.Completer, error)

// Analyzer analyzes the changes between two commits of a repository.
// An Analyzer holds no per-call state and is safe for concurrent use.
type Analyzer struct {
	config       *config.Config
	source       gitdiff.Source
	trees        gitdiff.TreeSource
	newCompleter CompleterFactory
	logger       *slog.Logger
}

// New creates a new analyzer. If cfg is nil, config.Default() will be used.
// Options are applied on top of cfg before it is validated.
func New(cfg *config.Config, opts ...Option) (*Analyzer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cp := *cfg

	a := &Analyzer{
		config:       &cp,
		newCompleter: completion.New,
		logger:       logging.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a.logger = a.logger.With("component", "analyzer")

	if a.source == nil {
		source, err := defaultSource(a.config, a.logger)
		if err != nil {
			return nil, err
		}
		a.source = source
	}
	if a.trees == nil {
		a.trees = gitdiff.NewCloneSource(a.logger)
	}

	return a, nil
}

// defaultSource clones repositories with go-git, and uses the GitHub compare
// API for GitHub URLs when a token or an enterprise URL is configured.
func defaultSource(cfg *config.Config, logger *slog.Logger) (gitdiff.Source, error) {
	router := &gitdiff.Router{Clone: gitdiff.NewCloneSource(logger), Logger: logger}
	if cfg.GitHub.Token == "" && cfg.GitHub.BaseURL == "" {
		return router, nil
	}

	client, err := githubAPI.NewClient(context.Background(), cfg.GitHub.Token, cfg.GitHub.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating GitHub client: %w", err)
	}
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.Review.MaxAttempts
	policy.Logger = logger
	router.GitHub = gitdiff.NewGitHubSource(client.WithRetryPolicy(policy), logger)
	return router, nil
}

// Result represents the aggregated analysis of a change set.
type Result struct {
	OverallGood     bool               `json:"overall_good" yaml:"overall_good"`
	TotalFiles      int                `json:"total_files" yaml:"total_files"`
	AnalyzedFiles   int                `json:"analyzed_files" yaml:"analyzed_files"`
	GoodFiles       int                `json:"good_files" yaml:"good_files"`
	FilesWithIssues int                `json:"files_with_issues" yaml:"files_with_issues"`
	Files           []reviewer.Verdict `json:"file_details" yaml:"file_details"`
}

// newResult aggregates verdicts. Skipped files count toward the total only;
// error verdicts count as analyzed files with issues.
func newResult(verdicts []reviewer.Verdict) *Result {
	r := &Result{TotalFiles: len(verdicts), Files: verdicts}
	for _, v := range verdicts {
		if !v.Analyzed() {
			continue
		}
		r.AnalyzedFiles++
		if v.IsGood && !v.Error {
			r.GoodFiles++
		} else {
			r.FilesWithIssues++
		}
	}
	r.OverallGood = r.FilesWithIssues == 0 && r.AnalyzedFiles > 0
	return r
}

// FileDetailsJSON encodes the per-file verdicts with EncodeFileDetails.
func (r *Result) FileDetailsJSON() (string, error) {
	return EncodeFileDetails(r.Files)
}

// EncodeFileDetails serializes verdicts as a JSON array. A nil slice encodes
// as an empty array.
func EncodeFileDetails(verdicts []reviewer.Verdict) (string, error) {
	if verdicts == nil {
		verdicts = []reviewer.Verdict{}
	}
	b, err := json.Marshal(verdicts)
	if err != nil {
		return "", fmt.Errorf("encoding file details: %w", err)
	}
	return string(b), nil
}

// DecodeFileDetails parses the output of EncodeFileDetails.
func DecodeFileDetails(s string) ([]reviewer.Verdict, error) {
	var verdicts []reviewer.Verdict
	if err := json.Unmarshal([]byte(s), &verdicts); err != nil {
		return nil, fmt.Errorf("decoding file details: %w", err)
	}
	return verdicts, nil
}

type argument struct {
	name  string
	value string
}

// requireArgs reports the first blank argument.
func requireArgs(args ...argument) error {
	for _, arg := range args {
		if strings.TrimSpace(arg.value) == "" {
			return errors.Empty(arg.name)
		}
	}
	return nil
}

// AnalyzeRepositoryChanges reviews every file changed between commit1 and
// commit2 of the repository at repoURL.
//
// The returned error is an invocation error: an empty argument, an
// unreachable repository, an unknown commit or a rejected credential, or the
// call timeout expiring. Failures to review individual files are reported in
// their verdicts instead.
func (a *Analyzer) AnalyzeRepositoryChanges(ctx context.Context, apiKey, repoURL, commit1, commit2 string) (*Result, error) {
	if err := requireArgs(
		argument{"api_key", apiKey},
		argument{"repo_url", repoURL},
		argument{"commit1", commit1},
		argument{"commit2", commit2},
	); err != nil {
		return nil, err
	}

	start := time.Now()
	logger := a.logger.With("run_id", ulid.Make().String(), "repo", repoURL)
	ctx, cancel := context.WithTimeout(ctx, a.config.Review.CallTimeout)
	defer cancel()

	files, err := a.source.ChangedFiles(ctx, repoURL, commit1, commit2)
	if err != nil {
		logger.Error("retrieving changes failed", "from", commit1, "to", commit2, "error", err)
		return nil, err
	}
	logger.Info("retrieved changes", "from", commit1, "to", commit2, "files", len(files))

	if len(files) == 0 {
		return newResult(nil), nil
	}

	c, err := a.completer(ctx, apiKey, reviewer.SystemPrompt, logger)
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
	verdicts, err := rv.Review(ctx, files)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("analysis exceeded call timeout of %s: %w", a.config.Review.CallTimeout, err)
		}
		logger.Error("review aborted", "error", err)
		return nil, err
	}

	result := newResult(verdicts)
	logger.Info("analysis complete",
		"overall_good", result.OverallGood,
		"total", result.TotalFiles,
		"analyzed", result.AnalyzedFiles,
		"good", result.GoodFiles,
		"issues", result.FilesWithIssues,
		"duration", time.Since(start))
	return result, nil
}

// AskQuestion sends prompt to the completion service and returns its reply.
func (a *Analyzer) AskQuestion(ctx context.Context, prompt, apiKey string) (string, error) {
	if err := requireArgs(argument{"prompt", prompt}, argument{"api_key", apiKey}); err != nil {
		return "", err
	}

	logger := a.logger.With("run_id", ulid.Make().String())
	ctx, cancel := context.WithTimeout(ctx, a.config.Review.CallTimeout)
	defer cancel()

	c, err := a.completer(ctx, apiKey, "", logger)
	if err != nil {
		return "", err
	}
	defer completion.Close(c)

	reply, err := c.Complete(ctx, prompt)
	if err != nil {
		logger.Error("question failed", "error", err)
		return "", err
	}
	return reply, nil
}

func (a *Analyzer) completer(ctx context.Context, apiKey, system string, logger *slog.Logger) (completion.Completer, error) {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = a.config.Review.MaxAttempts
	policy.Logger = logger

	var baseURL string
	if a.config.Provider == constants.ProviderOpenAI {
		baseURL = a.config.OpenAI.BaseURL
	}

	return a.newCompleter(ctx, a.config.Provider, apiKey, completion.Options{
		Model:             a.config.Model(),
		BaseURL:           baseURL,
		MaxTokens:         a.config.Review.MaxTokens,
		Temperature:       0.1,
		System:            system,
		RequestTimeout:    a.config.Review.RequestTimeout,
		RequestsPerSecond: a.config.Review.RequestsPerSecond,
		Retry:             policy,
		Logger:            logger,
	})
}
