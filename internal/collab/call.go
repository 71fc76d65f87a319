// Package collab wraps calls to external collaborators (search, embedding,
// language model) with a per-attempt timeout and a single retry.
package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"horse.fit/newsdesk/internal/news"
)

const (
	DefaultTimeout = 60 * time.Second
	maxAttempts    = 2
)

// Policy configures one collaborator. Zero values use DefaultTimeout and no backoff.
type Policy struct {
	Timeout time.Duration
	Backoff time.Duration
	// OnRetry is called after a failed first attempt, before the retry.
	OnRetry func(err error)
}

// Do runs fn at most twice. Each attempt gets its own deadline. Exhausted
// calls return an error wrapping news.ErrCollaboratorTimeout or
// news.ErrCollaboratorError together with the last underlying error.
// Cancellation of ctx is returned as-is and never retried.
func Do[T any](ctx context.Context, policy Policy, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	timeout := policy.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var lastErr error
	timedOut := false
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		value, err := fn(attemptCtx)
		deadlineHit := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return value, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		lastErr = err
		timedOut = deadlineHit || errors.Is(err, context.DeadlineExceeded)
		if attempt < maxAttempts {
			if policy.OnRetry != nil {
				policy.OnRetry(err)
			}
			if policy.Backoff > 0 {
				select {
				case <-ctx.Done():
					return zero, ctx.Err()
				case <-time.After(policy.Backoff):
				}
			}
		}
	}

	kind := news.ErrCollaboratorError
	if timedOut {
		kind = news.ErrCollaboratorTimeout
	}
	return zero, fmt.Errorf("%s: %w: %w", name, kind, lastErr)
}
