package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

func TestLimiter_BurstThenDeny(t *testing.T) {
	l := NewWithBurst("test", 0.001, 2)

	if !l.Allow() || !l.Allow() {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if l.Allow() {
		t.Error("expected third call to be denied")
	}
}

func TestLimiter_WaitDeadline(t *testing.T) {
	l := NewWithBurst("test", 0.001, 1)
	l.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	if apperror.GetCode(err) != apperror.CodeRateLimitExceeded {
		t.Errorf("code = %v, want RateLimitExceeded (err=%v)", apperror.GetCode(err), err)
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New("test", 0)
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatalf("call %d denied on unlimited limiter", i)
		}
	}
}
