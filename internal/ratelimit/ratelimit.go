// Package ratelimit wraps golang.org/x/time/rate for outbound API budgets.
package ratelimit

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

// Limiter paces calls to one upstream.
type Limiter struct {
	name    string
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerMinute, with a burst of 10% of the
// budget (at least one). A non-positive budget disables limiting.
func New(name string, requestsPerMinute int) *Limiter {
	if requestsPerMinute <= 0 {
		return &Limiter{name: name, limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return NewWithBurst(name, float64(requestsPerMinute)/60.0, burst)
}

// NewWithBurst creates a limiter with an explicit per-second rate and burst.
func NewWithBurst(name string, requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Wait blocks until a token is available. When the context ends first, or
// the wait could never finish before its deadline, it returns
// CodeRateLimitExceeded.
func (l *Limiter) Wait(ctx context.Context) error {
	err := l.limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperror.New(apperror.CodeRateLimitExceeded,
		apperror.WithContext(l.name), apperror.WithCause(err))
}

// Allow reports whether a call may happen now without waiting.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SetLimit updates the budget.
func (l *Limiter) SetLimit(requestsPerMinute int) {
	l.limiter.SetLimit(rate.Limit(float64(requestsPerMinute) / 60.0))
}
