// Package retry runs collaborator calls under a per-attempt timeout with bounded
// exponential backoff. Only errors classified as transient by apperror are retried.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

// Policy bounds retries for one call site.
type Policy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// AttemptTimeout caps each attempt. Zero leaves the parent context as is.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns three attempts starting at 100ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
		AttemptTimeout:  5 * time.Second,
	}
}

// NoRetry runs the call once with the given timeout.
func NoRetry(timeout time.Duration) Policy {
	return Policy{MaxAttempts: 1, AttemptTimeout: timeout}
}

// Notify observes each failed attempt that will be retried.
type Notify func(err error, next time.Duration)

// Do calls op until it succeeds, returns a non-retryable error, attempts run
// out or ctx is done. A timed-out attempt surfaces as CodeServiceTimeout.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), notify Notify) (T, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(attempts),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(notify)))
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := attempt(ctx, p.AttemptTimeout, op)
		if err == nil {
			return v, nil
		}
		if !apperror.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}

// Run is Do for calls without a result.
func Run(ctx context.Context, p Policy, op func(ctx context.Context) error, notify Notify) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, notify)
	return err
}

func attempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := op(actx)
	if err != nil && actx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return v, apperror.New(apperror.CodeServiceTimeout,
			apperror.WithCause(err),
			apperror.WithContext("attempt exceeded "+timeout.String()))
	}
	return v, err
}
