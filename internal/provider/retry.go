package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// retryBase is the first backoff interval; it doubles per attempt.
var retryBase = 500 * time.Millisecond

// transientError marks failures worth another attempt (timeouts, 5xx, 429).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(err error) error {
	return &transientError{err: err}
}

// IsTransient reports whether err was classified as retryable.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// WithRetry wraps g so transient failures are retried with exponential
// backoff, up to maxRetries extra attempts.
func WithRetry(g Generator, maxRetries int) Generator {
	if maxRetries <= 0 {
		return g
	}
	return GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		var reply string
		b := retry.WithMaxRetries(uint64(maxRetries), retry.NewExponential(retryBase))
		err := retry.Do(ctx, b, func(ctx context.Context) error {
			out, err := g.Generate(ctx, prompt)
			if err != nil {
				if IsTransient(err) {
					return retry.RetryableError(err)
				}
				return err
			}
			reply = out
			return nil
		})
		return reply, err
	})
}
