package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

func fastPolicy(attempts uint) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
		AttemptTimeout:  time.Second,
	}
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	notified := 0

	got, err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", apperror.New(apperror.CodeServiceUnavailable)
		}
		return "ok", nil
	}, func(error, time.Duration) { notified++ })

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls", got, calls)
	}
	if notified != 2 {
		t.Errorf("notified %d times, want 2", notified)
	}
}

func TestDo_NeverRetriesInvariantViolations(t *testing.T) {
	calls := 0
	err := Run(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		return apperror.New(apperror.CodeInsufficientBalance)
	}, nil)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if apperror.GetCode(err) != apperror.CodeInsufficientBalance {
		t.Errorf("err = %v", err)
	}
}

func TestDo_BoundedAttempts(t *testing.T) {
	calls := 0
	err := Run(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	}, nil)

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_AttemptTimeoutIsFailure(t *testing.T) {
	p := fastPolicy(1)
	p.AttemptTimeout = 10 * time.Millisecond

	err := Run(context.Background(), p, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	if apperror.GetCode(err) != apperror.CodeServiceTimeout {
		t.Errorf("code = %s, want %s", apperror.GetCode(err), apperror.CodeServiceTimeout)
	}
}
