package analyzer

import (
	"log/slog"
	"time"

	"github.com/VAR-META-Tech/intent-verification/internal/config"
	"github.com/VAR-META-Tech/intent-verification/internal/gitdiff"
)

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithConcurrency sets the number of files reviewed in parallel.
func WithConcurrency(n int) Option {
	return func(a *Analyzer) {
		a.config.Review.Concurrency = n
	}
}

// WithProvider selects the completion provider.
func WithProvider(provider string) Option {
	return func(a *Analyzer) {
		a.config.Provider = provider
	}
}

// WithCallTimeout bounds a whole entry point call.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		a.config.Review.CallTimeout = d
	}
}

// WithSource replaces the diff source.
func WithSource(s gitdiff.Source) Option {
	return func(a *Analyzer) {
		a.source = s
	}
}

// WithTreeSource replaces how the files of a commit are read.
func WithTreeSource(s gitdiff.TreeSource) Option {
	return func(a *Analyzer) {
		a.trees = s
	}
}

// WithCompleterFactory replaces how completers are built from a credential.
func WithCompleterFactory(f CompleterFactory) Option {
	return func(a *Analyzer) {
		a.newCompleter = f
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewWithOptions creates a new analyzer from the default configuration and the provided options.
func NewWithOptions(opts ...Option) (*Analyzer, error) {
	return New(config.Default(), opts...)
}
