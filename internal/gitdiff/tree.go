package gitdiff

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sort"
	"unicode/utf8"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotText is returned when a file exists but is binary or not UTF-8.
var ErrNotText = stderrors.New("not a text file")

// Tree gives read access to the files of one commit.
type Tree interface {
	// ReadFile returns the content of path. It wraps object.ErrFileNotFound
	// for missing files and ErrNotText for binary ones.
	ReadFile(path string) (string, error)

	// Walk calls fn for every text file in path order until fn returns false.
	Walk(fn func(path, content string) bool) error
}

// TreeSource opens the tree of a repository at a commit.
type TreeSource interface {
	Tree(ctx context.Context, repoURL, commit string) (Tree, error)
}

var _ TreeSource = (*CloneSource)(nil)

// Tree implements TreeSource.
func (s *CloneSource) Tree(ctx context.Context, repoURL, commit string) (Tree, error) {
	repo, err := s.open(ctx, repoURL)
	if err != nil {
		return nil, err
	}
	tree, err := commitTree(repo, repoURL, commit)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("opened tree", "repo", repoURL, "commit", commit)
	return &gitTree{tree: tree}, nil
}

type gitTree struct {
	tree *object.Tree
}

func (t *gitTree) ReadFile(path string) (string, error) {
	f, err := t.tree.File(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return textContent(f)
}

func (t *gitTree) Walk(fn func(path, content string) bool) error {
	var paths []string
	err := t.tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(paths)

	for _, p := range paths {
		content, err := t.ReadFile(p)
		if stderrors.Is(err, ErrNotText) {
			continue
		}
		if err != nil {
			return err
		}
		if !fn(p, content) {
			return nil
		}
	}
	return nil
}

func textContent(f *object.File) (string, error) {
	binary, err := f.IsBinary()
	if err != nil {
		return "", fmt.Errorf("binary check for %s: %w", f.Name, err)
	}
	if binary {
		return "", fmt.Errorf("%s: %w", f.Name, ErrNotText)
	}

	r, err := f.Reader()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", f.Name, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", f.Name, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s: %w", f.Name, ErrNotText)
	}
	return string(data), nil
}
