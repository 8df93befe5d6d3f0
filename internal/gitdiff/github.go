package gitdiff

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/VAR-META-Tech/intent-verification/internal/constants"
	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	gh "github.com/VAR-META-Tech/intent-verification/internal/github"
	"github.com/VAR-META-Tech/intent-verification/internal/logging"
)

// ErrCompareIncomplete reports that the compare API cannot describe the
// change set the way a tree-to-tree diff does. Router falls back to cloning.
var ErrCompareIncomplete = stderrors.New("compare API result differs from tree diff")

// GitHubSource reads changes of github.com repositories through the compare API
// without cloning them.
//
// GitHub compares head against the merge base of the two commits. The result
// matches a tree-to-tree diff only when from is an ancestor of to, so other
// comparisons are rejected with ErrCompareIncomplete, as are comparisons that
// reach the file limit of the endpoint.
type GitHubSource struct {
	api    gh.API
	logger *slog.Logger
}

// NewGitHubSource creates a GitHubSource backed by api.
func NewGitHubSource(api gh.API, logger *slog.Logger) *GitHubSource {
	if logger == nil {
		logger = logging.Default()
	}
	return &GitHubSource{api: api, logger: logger.With("component", "gitdiff.github")}
}

var _ Source = (*GitHubSource)(nil)

// ChangedFiles implements Source.
func (s *GitHubSource) ChangedFiles(ctx context.Context, repoURL, from, to string) ([]FileChange, error) {
	owner, repo, err := gh.ParseRepositoryURL(repoURL)
	if err != nil {
		return nil, &errors.RetrievalError{RepoURL: repoURL, Err: fmt.Errorf("%w: %w", errors.ErrRepositoryUnreachable, err)}
	}

	cmp, err := s.api.Compare(ctx, owner, repo, from, to)
	if err != nil {
		return nil, s.classify(ctx, repoURL, owner, repo, from+"..."+to, err)
	}

	base, mergeBase := cmp.GetBaseCommit().GetSHA(), cmp.GetMergeBaseCommit().GetSHA()
	if base != "" && mergeBase != "" && base != mergeBase {
		return nil, fmt.Errorf("%w: %s is not an ancestor of %s", ErrCompareIncomplete, from, to)
	}
	if len(cmp.Files) >= gh.CompareFilesLimit {
		return nil, fmt.Errorf("%w: comparison lists %d files", ErrCompareIncomplete, len(cmp.Files))
	}

	changes := make([]FileChange, 0, len(cmp.Files))
	for _, f := range cmp.Files {
		fc := FileChange{
			Path:       f.GetFilename(),
			OldPath:    f.GetPreviousFilename(),
			ChangeType: changeType(f.GetStatus()),
			Patch:      f.GetPatch(),
			Additions:  f.GetAdditions(),
			Deletions:  f.GetDeletions(),
		}

		if fc.ChangeType != constants.ChangeDeleted {
			content, err := s.api.FileContent(ctx, owner, repo, fc.Path, to)
			switch {
			case stderrors.Is(err, errors.ErrContentUnavailable):
				s.logger.Warn("file content unavailable, skipping", "path", fc.Path, "error", err)
				fc.SkipReason = "content unavailable from GitHub"
			case err != nil:
				return nil, &errors.RetrievalError{RepoURL: repoURL, Ref: to, Err: err}
			default:
				fc.setContent(content)
			}
		}
		changes = append(changes, fc)
	}
	sortByPath(changes)

	s.logger.Debug("compared commits", "owner", owner, "repo", repo, "from", from, "to", to, "files", len(changes))
	return changes, nil
}

// classify tells an unknown commit apart from an unreachable repository.
// GitHub answers both with 404 on the compare endpoint.
func (s *GitHubSource) classify(ctx context.Context, repoURL, owner, repo, ref string, err error) error {
	switch gh.StatusCode(err) {
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		if _, repoErr := s.api.Repository(ctx, owner, repo); repoErr != nil {
			return &errors.RetrievalError{RepoURL: repoURL, Err: fmt.Errorf("%w: %w", errors.ErrRepositoryUnreachable, repoErr)}
		}
		return &errors.RetrievalError{RepoURL: repoURL, Ref: ref, Err: fmt.Errorf("%w: %w", errors.ErrCommitNotFound, err)}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &errors.RetrievalError{RepoURL: repoURL, Err: fmt.Errorf("%w: %w", errors.ErrRepositoryUnreachable, err)}
	}
	return &errors.RetrievalError{RepoURL: repoURL, Ref: ref, Err: err}
}

func changeType(status string) string {
	switch status {
	case "added":
		return constants.ChangeAdded
	case "removed":
		return constants.ChangeDeleted
	case "renamed":
		return constants.ChangeRenamed
	default:
		return constants.ChangeModified
	}
}

// Router sends github.com URLs to GitHub when a GitHub source is configured
// and everything else to Clone. GitHub results that would differ from a tree
// diff are recomputed with Clone.
type Router struct {
	GitHub Source
	Clone  Source
	Logger *slog.Logger
}

var _ Source = (*Router)(nil)

// ChangedFiles implements Source.
func (r *Router) ChangedFiles(ctx context.Context, repoURL, from, to string) ([]FileChange, error) {
	if r.GitHub != nil && gh.IsGitHubURL(repoURL) {
		files, err := r.GitHub.ChangedFiles(ctx, repoURL, from, to)
		if !stderrors.Is(err, ErrCompareIncomplete) {
			return files, err
		}
		logger := r.Logger
		if logger == nil {
			logger = logging.Default()
		}
		logger.Warn("falling back to clone", "repo", repoURL, "reason", err)
	}
	return r.Clone.ChangedFiles(ctx, repoURL, from, to)
}
