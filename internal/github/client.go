package github

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/VAR-META-Tech/intent-verification/internal/constants"
	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/retry"
)

// Client implements the API interface for GitHub operations.
type Client struct {
	client *github.Client
	policy retry.Policy
}

// NewClient creates a new GitHub client. An empty token yields an
// unauthenticated client; baseURL selects a GitHub Enterprise server.
func NewClient(ctx context.Context, token, baseURL string) (*Client, error) {
	var gh *github.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		gh = github.NewClient(oauth2.NewClient(ctx, ts))
	} else {
		gh = github.NewClient(nil)
	}

	if baseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, errors.Validation("github.base_url", baseURL, err.Error())
		}
	}

	return New(gh), nil
}

// New wraps an existing go-github client.
func New(gh *github.Client) *Client {
	return &Client{client: gh, policy: retry.DefaultPolicy()}
}

// WithRetryPolicy returns a copy of c that retries with p.
func (c *Client) WithRetryPolicy(p retry.Policy) *Client {
	cp := *c
	cp.policy = p
	return &cp
}

// ensure Client implements API interface.
var _ API = (*Client)(nil)

// withTimeout wraps a context with a timeout for API calls.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		// If parent context already has a deadline, use the earlier one
		if time.Until(deadline) < timeout {
			return ctx, func() {} // no-op cancel
		}
	}
	return context.WithTimeout(ctx, timeout)
}

// apiError converts a go-github error into an APIError carrying the HTTP status.
func apiError(method string, err error) error {
	e := errors.API("GitHub", method, err)
	var ghErr *github.ErrorResponse
	if stderrors.As(err, &ghErr) && ghErr.Response != nil {
		e.StatusCode = ghErr.Response.StatusCode
	}
	var rateErr *github.RateLimitError
	if stderrors.As(err, &rateErr) && rateErr.Response != nil {
		e.StatusCode = 429
	}
	var abuseErr *github.AbuseRateLimitError
	if stderrors.As(err, &abuseErr) {
		e.StatusCode = 429
	}
	return e
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *errors.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Repository retrieves a repository by owner and name.
func (c *Client) Repository(ctx context.Context, owner, repo string) (*github.Repository, error) {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()

	var r *github.Repository
	err := c.policy.Do(ctx, func() error {
		var err error
		r, _, err = c.client.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return apiError("Repositories.Get", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", owner, repo, err)
	}
	return r, nil
}

// CompareFilesLimit is the most files the compare endpoint lists for one
// comparison. Longer change sets are silently cut at this length.
const CompareFilesLimit = 300

// Compare retrieves the comparison of base and head. GitHub returns the
// changed files with the first page only, so a single request is made.
func (c *Client) Compare(ctx context.Context, owner, repo, base, head string) (*github.CommitsComparison, error) {
	// Add timeout for this potentially long operation
	ctx, cancel := withTimeout(ctx, 2*time.Minute)
	defer cancel()

	opt := &github.ListOptions{PerPage: constants.GitHubAPIPageSize}
	var comparison *github.CommitsComparison
	err := c.policy.Do(ctx, func() error {
		var err error
		comparison, _, err = c.client.Repositories.CompareCommits(ctx, owner, repo, base, head, opt)
		if err != nil {
			return apiError("Repositories.CompareCommits", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compare %s...%s: %w", base, head, err)
	}
	return comparison, nil
}

// FileContent retrieves the content of a file at ref. Files above the 1 MB
// limit of the contents endpoint come back without content and are read
// through the Git blobs endpoint instead.
func (c *Client) FileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()

	var data []byte
	err := c.policy.Do(ctx, func() error {
		file, _, _, err := c.client.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
		if err != nil {
			return apiError("Repositories.GetContents", err)
		}
		if file == nil {
			return errors.API("GitHub", "Repositories.GetContents", fmt.Errorf("%s is not a file", path))
		}

		if file.GetEncoding() == "none" {
			if file.GetSHA() == "" {
				return fmt.Errorf("%w: %s has no blob sha", errors.ErrContentUnavailable, path)
			}
			raw, _, err := c.client.Git.GetBlobRaw(ctx, owner, repo, file.GetSHA())
			if err != nil {
				return fmt.Errorf("%w: %w", errors.ErrContentUnavailable, apiError("Git.GetBlobRaw", err))
			}
			data = raw
			return nil
		}

		content, err := file.GetContent()
		if err != nil {
			return errors.API("GitHub", "Repositories.GetContents", err)
		}
		data = []byte(content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s at %s: %w", path, ref, err)
	}
	return data, nil
}

// IsGitHubURL reports whether repoURL points at a github.com repository.
func IsGitHubURL(repoURL string) bool {
	_, _, err := ParseRepositoryURL(repoURL)
	return err == nil
}

// ParseRepositoryURL parses a GitHub repository URL and returns owner and repo.
// It supports these formats:
//   - https://github.com/owner/repo(.git)
//   - git@github.com:owner/repo(.git)
func ParseRepositoryURL(repoURL string) (owner, repo string, err error) {
	if repoURL == "" {
		return "", "", errors.Validation("url", repoURL, "empty URL")
	}

	// Limit URL length to prevent abuse
	const maxURLLength = 500
	if len(repoURL) > maxURLLength {
		return "", "", errors.Validation("url", repoURL, fmt.Sprintf("URL exceeds maximum length of %d", maxURLLength))
	}

	var path string
	switch {
	case strings.HasPrefix(repoURL, "git@github.com:"):
		path = strings.TrimPrefix(repoURL, "git@github.com:")
	default:
		u, perr := url.Parse(repoURL)
		if perr != nil || (u.Scheme != "https" && u.Scheme != "http") || !strings.EqualFold(u.Host, "github.com") {
			return "", "", errors.Validation("url", repoURL, "not a github.com repository URL")
		}
		path = strings.TrimPrefix(u.Path, "/")
	}

	path = strings.TrimSuffix(strings.TrimSuffix(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		return "", "", errors.Validation("url", repoURL, "expected owner/repo path")
	}
	owner, repo = parts[0], parts[1]

	// Security: Validate owner and repo names to prevent injection
	if !isValidGitHubName(owner) {
		return "", "", errors.Validation("owner", owner, "invalid owner name format")
	}
	if !isValidGitHubName(repo) {
		return "", "", errors.Validation("repo", repo, "invalid repository name format")
	}

	return owner, repo, nil
}

// isValidGitHubName validates GitHub owner/repo names according to GitHub's rules
// GitHub names can contain alphanumeric characters, hyphens, periods, and underscores
// but cannot start with a hyphen or period
func isValidGitHubName(name string) bool {
	if name == "" {
		return false
	}

	// Length limits based on GitHub's constraints
	if len(name) > 100 {
		return false
	}

	// Cannot start with hyphen or period
	if name[0] == '-' || name[0] == '.' {
		return false
	}

	// Check each character
	for _, char := range name {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '-' || char == '_' || char == '.') {
			return false
		}
	}

	return true
}
