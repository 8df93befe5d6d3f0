package completion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/retry"
)

// decorator forwards Close to the wrapped completer.
type decorator struct {
	next Completer
}

func (d decorator) Close() error {
	return Close(d.next)
}

// Close releases c when it holds resources such as a gRPC connection.
func Close(c Completer) error {
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

type retrying struct {
	decorator
	policy retry.Policy
}

// WithRetry retries transient failures of c according to policy.
func WithRetry(c Completer, policy retry.Policy) Completer {
	return &retrying{decorator: decorator{next: c}, policy: policy}
}

func (r *retrying) Complete(ctx context.Context, prompt string) (string, error) {
	var out string
	err := r.policy.Do(ctx, func() error {
		var err error
		out, err = r.next.Complete(ctx, prompt)
		return err
	})
	return out, err
}

type limited struct {
	decorator
	limiter *rate.Limiter
}

// WithRateLimit allows at most rps requests per second through c.
// A non-positive rps disables limiting.
func WithRateLimit(c Completer, rps float64) Completer {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		if rps > 1 {
			burst = int(rps)
		}
	}
	return &limited{decorator: decorator{next: c}, limiter: rate.NewLimiter(limit, burst)}
}

func (l *limited) Complete(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.Complete(ctx, prompt)
}

type timed struct {
	decorator
	timeout time.Duration
}

// WithTimeout bounds every request made through c.
func WithTimeout(c Completer, timeout time.Duration) Completer {
	return &timed{decorator: decorator{next: c}, timeout: timeout}
}

// Complete reports an expired request as a 408 so the retry decorator tries
// again while the caller's context is still live.
func (t *timed) Complete(ctx context.Context, prompt string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.next.Complete(reqCtx, prompt)
	if err != nil && ctx.Err() == nil && reqCtx.Err() == context.DeadlineExceeded {
		return "", &errors.APIError{
			Service:    "completion",
			Method:     "Complete",
			StatusCode: http.StatusRequestTimeout,
			Err:        fmt.Errorf("request timed out after %s", t.timeout),
		}
	}
	return out, err
}
