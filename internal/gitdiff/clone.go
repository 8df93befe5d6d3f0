package gitdiff

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/VAR-META-Tech/intent-verification/internal/constants"
	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/logging"
)

// CloneSource reads changes with go-git. Remote repositories are cloned into
// memory; local paths and file:// URLs are opened in place.
type CloneSource struct {
	logger *slog.Logger
}

// NewCloneSource creates a CloneSource. A nil logger uses the process default.
func NewCloneSource(logger *slog.Logger) *CloneSource {
	if logger == nil {
		logger = logging.Default()
	}
	return &CloneSource{logger: logger.With("component", "gitdiff")}
}

var _ Source = (*CloneSource)(nil)

// ChangedFiles implements Source.
func (s *CloneSource) ChangedFiles(ctx context.Context, repoURL, from, to string) ([]FileChange, error) {
	repo, err := s.open(ctx, repoURL)
	if err != nil {
		return nil, err
	}

	fromTree, err := commitTree(repo, repoURL, from)
	if err != nil {
		return nil, err
	}
	toTree, err := commitTree(repo, repoURL, to)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, &errors.RetrievalError{RepoURL: repoURL, Ref: from + ".." + to, Err: err}
	}

	files := make([]FileChange, 0, len(changes))
	for _, change := range changes {
		fc, err := toFileChange(ctx, change)
		if err != nil {
			return nil, &errors.RetrievalError{RepoURL: repoURL, Ref: to, Err: err}
		}
		files = append(files, fc)
	}
	sortByPath(files)

	s.logger.Debug("computed change set", "repo", repoURL, "from", from, "to", to, "files", len(files))
	return files, nil
}

func (s *CloneSource) open(ctx context.Context, repoURL string) (*gogit.Repository, error) {
	if path, ok := localPath(repoURL); ok {
		repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{
			DetectDotGit: true,
		})
		if err != nil {
			return nil, &errors.RetrievalError{RepoURL: repoURL, Err: fmt.Errorf("%w: %w", errors.ErrRepositoryUnreachable, err)}
		}
		return repo, nil
	}

	s.logger.Info("cloning repository", "repo", repoURL)
	repo, err := gogit.CloneContext(ctx, memory.NewStorage(), nil, &gogit.CloneOptions{
		URL: repoURL,
	})
	if err != nil {
		return nil, &errors.RetrievalError{RepoURL: repoURL, Err: fmt.Errorf("%w: %w", errors.ErrRepositoryUnreachable, err)}
	}
	return repo, nil
}

// localPath reports whether repoURL names a repository on the local filesystem.
func localPath(repoURL string) (string, bool) {
	if strings.HasPrefix(repoURL, "file://") {
		return strings.TrimPrefix(repoURL, "file://"), true
	}
	if strings.Contains(repoURL, "://") || strings.HasPrefix(repoURL, "git@") {
		return "", false
	}
	if _, err := os.Stat(repoURL); err == nil {
		return repoURL, true
	}
	return "", false
}

func commitTree(repo *gogit.Repository, repoURL, ref string) (*object.Tree, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, &errors.RetrievalError{RepoURL: repoURL, Ref: ref, Err: fmt.Errorf("%w: %w", errors.ErrCommitNotFound, err)}
	}

	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, &errors.RetrievalError{RepoURL: repoURL, Ref: ref, Err: fmt.Errorf("%w: %w", errors.ErrCommitNotFound, err)}
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, &errors.RetrievalError{RepoURL: repoURL, Ref: ref, Err: err}
	}
	return tree, nil
}

func toFileChange(ctx context.Context, change *object.Change) (FileChange, error) {
	action, err := change.Action()
	if err != nil {
		return FileChange{}, err
	}

	var fc FileChange
	switch action {
	case merkletrie.Insert:
		fc.ChangeType = constants.ChangeAdded
		fc.Path = change.To.Name
	case merkletrie.Delete:
		fc.ChangeType = constants.ChangeDeleted
		fc.Path = change.From.Name
	default:
		fc.Path = change.To.Name
		fc.ChangeType = constants.ChangeModified
		if change.From.Name != change.To.Name {
			fc.ChangeType = constants.ChangeRenamed
			fc.OldPath = change.From.Name
		}
	}

	patch, err := change.PatchContext(ctx)
	if err != nil {
		return FileChange{}, fmt.Errorf("patch for %s: %w", fc.Path, err)
	}
	fc.Patch = patch.String()
	for _, stat := range patch.Stats() {
		fc.Additions += stat.Addition
		fc.Deletions += stat.Deletion
	}

	_, toFile, err := change.Files()
	if err != nil {
		return FileChange{}, fmt.Errorf("files for %s: %w", fc.Path, err)
	}
	if toFile == nil {
		return fc, nil
	}

	binary, err := toFile.IsBinary()
	if err != nil {
		return FileChange{}, fmt.Errorf("binary check for %s: %w", fc.Path, err)
	}
	if binary {
		fc.Binary = true
		return fc, nil
	}

	content, err := toFile.Contents()
	if err != nil {
		return FileChange{}, fmt.Errorf("contents of %s: %w", fc.Path, err)
	}
	fc.setContent([]byte(content))
	return fc, nil
}
