package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/logging"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		Delay:       time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Logger:      logging.Discard(),
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "deadline exceeded", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: false},
		{name: "rate limited", err: &errs.APIError{Service: "OpenAI", StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")}, want: true},
		{name: "server error", err: &errs.APIError{Service: "OpenAI", StatusCode: http.StatusBadGateway, Err: errors.New("upstream")}, want: true},
		{name: "overloaded", err: &errs.APIError{Service: "Anthropic", StatusCode: 529, Err: errors.New("overloaded")}, want: true},
		{name: "bad request", err: &errs.APIError{Service: "OpenAI", StatusCode: http.StatusBadRequest, Err: errors.New("timeout in body")}, want: false},
		{name: "auth", err: &errs.AuthError{Service: "OpenAI", Err: errors.New("429 invalid key")}, want: false},
		{name: "connection reset", err: errors.New("read tcp: connection reset by peer"), want: true},
		{name: "quota", err: errors.New("gemini: quota exceeded"), want: true},
		{name: "plain", err: errors.New("invalid argument"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestPolicyDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &errs.APIError{Service: "OpenAI", StatusCode: http.StatusServiceUnavailable, Err: errors.New("unavailable")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicyDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return &errs.APIError{Service: "OpenAI", StatusCode: http.StatusInternalServerError, Err: errors.New("boom")}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")

	var apiErr *errs.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestPolicyDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	authErr := &errs.AuthError{Service: "OpenAI", Err: errors.New("invalid api key")}
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return authErr
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errs.IsAuth(err))
}

func TestPolicyDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, Delay: time.Hour, MaxDelay: time.Hour, Logger: logging.Discard()}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func() error {
			calls++
			return errors.New("service unavailable")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDoRejectsNilArguments(t *testing.T) {
	//nolint:staticcheck // exercising the nil guard
	assert.Error(t, Do(nil, 1, func() error { return nil }))
	assert.Error(t, Do(context.Background(), 1, nil))
}
