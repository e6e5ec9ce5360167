package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	var transitions []gobreaker.State
	cfg := DefaultConfig("test-source")
	cfg.ConsecutiveFailures = 2
	cfg.Timeout = time.Hour
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to)
	}
	cb := New[int](cfg)

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}

	if !cb.IsOpen() {
		t.Fatalf("state = %v, want open", cb.State())
	}

	called := false
	_, err := cb.Execute(func() (int, error) {
		called = true
		return 1, nil
	})
	if called {
		t.Error("fn should not run while open")
	}
	if apperror.GetCode(err) != apperror.CodeCircuitOpen {
		t.Errorf("code = %s, want %s", apperror.GetCode(err), apperror.CodeCircuitOpen)
	}
	if !apperror.IsRetryable(err) {
		t.Error("open circuit should be retryable")
	}
	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Errorf("transitions = %v", transitions)
	}
}

func TestCircuitBreaker_IsSuccessfulFilter(t *testing.T) {
	cfg := DefaultConfig("filtered")
	cfg.ConsecutiveFailures = 1
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || !apperror.IsRetryable(err)
	}
	cb := New[string](cfg)

	_, _ = cb.Execute(func() (string, error) {
		return "", apperror.New(apperror.CodeInsufficientBalance)
	})

	if cb.IsOpen() {
		t.Error("deterministic rejections should not trip the breaker")
	}
}
