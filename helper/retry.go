package helper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is shared by every remote call made to chunk servers. Each attempt
// gets its own Timeout; attempts stop early on errors that retrying cannot fix.
type RetryPolicy struct {
	Timeout  time.Duration `env:"RPC_TIMEOUT"`
	Attempts int           `env:"RPC_ATTEMPTS"`
	Backoff  time.Duration `env:"RPC_BACKOFF"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:  RPC_TIMEOUT,
		Attempts: RPC_ATTEMPTS,
		Backoff:  RPC_BACKOFF,
	}
}

// Once is p limited to a single attempt, for requests that are not safe to repeat.
func (p RetryPolicy) Once() RetryPolicy {
	p.Attempts = 1
	return p
}

// Do runs fn until it succeeds, returns a permanent error, or runs out of attempts.
// Exhausted attempts are reported wrapped in ErrTransient.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	schedule := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Backoff), uint64(attempts-1)),
		ctx,
	)

	err := backoff.Retry(func() error {
		err := p.attempt(ctx, fn)
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, schedule)
	if err == nil || isPermanent(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(attemptCtx)
}

// Resource exhaustion is surfaced to the caller, not retried.
func isPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrResourceExhausted)
}
