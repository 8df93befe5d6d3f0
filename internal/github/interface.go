// Package github provides interfaces and implementations for the GitHub API
// calls used to read the changes between two commits.
package github

import (
	"context"

	"github.com/google/go-github/v68/github"
)

// API defines the interface for GitHub API operations.
// This interface enables testing by allowing mock implementations.
type API interface {
	// Repository checks that owner/repo exists and is visible to the client.
	Repository(ctx context.Context, owner, repo string) (*github.Repository, error)

	// Compare returns the comparison of base and head, including changed files.
	Compare(ctx context.Context, owner, repo, base, head string) (*github.CommitsComparison, error)

	// FileContent returns the decoded content of path at ref. It wraps
	// errors.ErrContentUnavailable when GitHub will not serve the file.
	FileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
}
