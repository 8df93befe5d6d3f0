// Package completion adapts text-completion services behind one small interface.
//
// Providers are built per call from the caller's credential. No credential is
// stored beyond the lifetime of the Completer that received it.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VAR-META-Tech/intent-verification/internal/constants"
	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/gemini"
	"github.com/VAR-META-Tech/intent-verification/internal/retry"
)

// Completer turns a prompt into the service's text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to Completer.
type Func func(ctx context.Context, prompt string) (string, error)

// Complete implements Completer.
func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Options configures a provider and its decorators.
type Options struct {
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	// System is sent as the system instruction when the provider supports one.
	System string

	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Retry             retry.Policy
	Logger            *slog.Logger
}

// New builds the provider named by provider with apiKey, wrapped with rate
// limiting, retries and a per-request timeout.
func New(ctx context.Context, provider, apiKey string, opts Options) (Completer, error) {
	if apiKey == "" {
		return nil, errors.Empty("api_key")
	}

	var (
		base Completer
		err  error
	)
	switch provider {
	case "", constants.ProviderOpenAI:
		base = NewOpenAI(apiKey, opts)
	case constants.ProviderGemini:
		base, err = gemini.NewClient(ctx, apiKey, gemini.Options{
			Model:       opts.Model,
			Temperature: float32(opts.Temperature),
			MaxTokens:   opts.MaxTokens,
			System:      opts.System,
		})
	case constants.ProviderAnthropic:
		base = NewAnthropic(apiKey, opts)
	default:
		return nil, errors.Validation("provider", provider, "unknown completion provider")
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s completer: %w", provider, err)
	}

	return Wrap(base, opts), nil
}

// Wrap decorates c with the per-request timeout, retry policy and rate limit of opts.
// The limiter is consulted before every attempt.
func Wrap(c Completer, opts Options) Completer {
	if opts.RequestTimeout > 0 {
		c = WithTimeout(c, opts.RequestTimeout)
	}
	c = WithRateLimit(c, opts.RequestsPerSecond)
	policy := opts.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	if policy.Logger == nil {
		policy.Logger = opts.Logger
	}
	return WithRetry(c, policy)
}
