// Package constants defines shared constants for the intent-verification library.
package constants

import "time"

// Default configuration values
const (
	// DefaultProvider is the completion provider used when none is configured.
	DefaultProvider = ProviderOpenAI

	// DefaultOpenAIModel is the chat model used for reviews and questions.
	DefaultOpenAIModel = "gpt-3.5-turbo"

	// DefaultOpenAIBaseURL is the OpenAI REST API root.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	// DefaultGeminiModel is the Gemini model used when provider is gemini.
	DefaultGeminiModel = "gemini-2.0-flash"

	// DefaultAnthropicModel is the Anthropic model used when provider is anthropic.
	DefaultAnthropicModel = "claude-haiku-4-5-20251001"

	// MaxRetryAttempts bounds the attempts made for a single completion request.
	MaxRetryAttempts = 3

	// DefaultConcurrency is the number of files reviewed in parallel.
	DefaultConcurrency = 4

	// DefaultRequestTimeout bounds a single completion request.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultCallTimeout bounds a whole entry point call.
	DefaultCallTimeout = 15 * time.Minute

	// DefaultSplitThreshold is the content size above which a file is reviewed in blocks.
	DefaultSplitThreshold = 12_000

	// DefaultMaxTokens caps completion length.
	DefaultMaxTokens = 1024

	// GitHubAPIPageSize is the number of items per page for GitHub API requests.
	GitHubAPIPageSize = 100
)

// Completion providers
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Change types as reported in file details.
const (
	ChangeAdded    = "added"
	ChangeModified = "modified"
	ChangeDeleted  = "deleted"
	ChangeRenamed  = "renamed"
)

// Rationale markers. Error verdicts start with MarkerReviewError so callers can
// tell a failed review from a negative one.
const (
	MarkerReviewError = "[review-error]"
	MarkerSkipped     = "[skipped]"
	MarkerNoResponse  = "No response."
)
