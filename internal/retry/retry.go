// Package retry provides retry functionality with exponential backoff and jitter
// using the avast/retry-go library for robust error handling.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/VAR-META-Tech/intent-verification/internal/constants"
	errs "github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/logging"
)

// Policy describes how a single request is retried.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
	MaxJitter   time.Duration
	Logger      *slog.Logger
}

// DefaultPolicy returns the backoff used for completion requests.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: constants.MaxRetryAttempts,
		Delay:       500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		MaxJitter:   time.Second,
	}
}

// Do executes the given function with exponential backoff retry logic with jitter
// using the default policy.
func Do(ctx context.Context, maxAttempts int, fn func() error) error {
	p := DefaultPolicy()
	p.MaxAttempts = maxAttempts
	return p.Do(ctx, fn)
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. The last error is returned wrapped, so errors.As
// still sees typed errors such as *errors.APIError.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}

	if fn == nil {
		return fmt.Errorf("function cannot be nil")
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	// Ensure maxAttempts doesn't cause overflow
	if maxAttempts > 100 {
		maxAttempts = 100
	}

	logger := p.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With("component", "retry")

	delayType := retry.BackOffDelay
	if p.MaxJitter > 0 {
		delayType = retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)
	}

	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			logger.Debug("attempting operation", "attempt", attempts, "max_attempts", maxAttempts)
			return fn()
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxAttempts)),
		retry.Delay(p.Delay),
		retry.MaxDelay(p.MaxDelay),
		retry.DelayType(delayType),
		retry.MaxJitter(p.MaxJitter),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			retryable := IsRetryable(err)
			if retryable {
				logger.Debug("retryable error encountered", "error", err)
			} else {
				logger.Debug("non-retryable error encountered", "error", err)
			}
			return retryable
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("attempt failed", "attempt", n+1, "max_attempts", maxAttempts, "error", err)
		}),
	)
	if err != nil {
		if attempts <= 1 {
			return err
		}
		return fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
	}

	return nil
}

// IsRetryable determines if an error should be retried.
// Typed errors are classified by status code; anything else falls back to
// matching common transient failure messages.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Check if context was cancelled - don't retry in this case
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errs.IsAuth(err) {
		return false
	}

	var apiErr *errs.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return IsRetryableStatus(apiErr.StatusCode)
	}

	errStr := strings.ToLower(err.Error())
	retryableErrors := []string{
		"connection refused",
		"timeout",
		"temporary failure",
		"too many requests",
		"rate limit",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"i/o timeout",
		"network is unreachable",
		"no such host",
		"eof",
		"connection reset",
		"broken pipe",
		"resource temporarily unavailable",
	}

	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}

	// Handle provider specific overload messages
	if strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "capacity") ||
		strings.Contains(errStr, "overloaded") {
		return true
	}

	return false
}

// IsRetryableStatus reports whether an HTTP status code denotes a transient failure.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	// Anthropic reports overload as 529.
	return code == 529
}
