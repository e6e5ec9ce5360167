package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/stablecoin-engine/business/workflow/domain"
	"github.com/fd1az/stablecoin-engine/business/workflow/infra/archive"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/logger"
	"github.com/fd1az/stablecoin-engine/internal/retry"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
		AttemptTimeout:  time.Second,
	}
}

func newOrchestrator(t *testing.T, policy retry.Policy, a Archive) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(OrchestratorConfig{Retry: policy, CompensationTimeout: 5 * time.Second}, a, &mockLogger{})
	require.NoError(t, err)
	return o
}

// journal records the order actions and compensations ran in.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.entries = append(j.entries, s)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) step(name string, err error) domain.Step {
	return domain.Step{
		Name: name,
		Action: func(context.Context) error {
			j.add("do:" + name)
			return err
		},
		Compensation: func(context.Context) error {
			j.add("undo:" + name)
			return nil
		},
	}
}

func TestOrchestrator_Completes(t *testing.T) {
	j := &journal{}
	arch := archive.NewMemory()
	o := newOrchestrator(t, testPolicy(), arch)

	res := o.Run(context.Background(), domain.Saga{
		Name:  "ok",
		Steps: []domain.Step{j.step("a", nil), j.step("b", nil)},
	})

	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.True(t, res.Succeeded())
	assert.NoError(t, res.Err())
	assert.NotEmpty(t, res.SagaID)
	assert.Equal(t, []string{"do:a", "do:b"}, j.list())

	archived, err := arch.Get(context.Background(), res.SagaID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, archived.Status)
}

func TestOrchestrator_CompensatesInReverseOrder(t *testing.T) {
	j := &journal{}
	o := newOrchestrator(t, testPolicy(), nil)
	boom := apperror.New(apperror.CodeInsufficientBalance)

	res := o.Run(context.Background(), domain.Saga{
		Name: "lifo",
		Steps: []domain.Step{
			j.step("a", nil),
			j.step("b", nil),
			j.step("c", nil),
			j.step("d", boom),
			j.step("e", nil),
		},
	})

	assert.Equal(t, domain.StatusCompensated, res.Status)
	assert.Equal(t, []string{
		"do:a", "do:b", "do:c", "do:d",
		"undo:c", "undo:b", "undo:a",
	}, j.list())

	require.NotNil(t, res.Failure)
	assert.Equal(t, "d", res.Failure.Step)
	assert.Equal(t, domain.CategoryInvariant, res.Failure.Category)
	assert.Equal(t, apperror.CodeInsufficientBalance, apperror.GetCode(res.Err()))
	assert.False(t, apperror.IsRetryable(res.Err()))
}

func TestOrchestrator_CancellationBetweenSteps(t *testing.T) {
	j := &journal{}
	o := newOrchestrator(t, testPolicy(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cancelling := j.step("b", nil)
	cancelling.Action = func(context.Context) error {
		j.add("do:b")
		cancel()
		return nil
	}

	res := o.Run(ctx, domain.Saga{
		Name:  "cancel",
		Steps: []domain.Step{j.step("a", nil), cancelling, j.step("c", nil)},
	})

	assert.Equal(t, domain.StatusCompensated, res.Status)
	assert.Equal(t, []string{"do:a", "do:b", "undo:b", "undo:a"}, j.list())
	require.NotNil(t, res.Failure)
	assert.Equal(t, domain.CategoryCancelled, res.Failure.Category)
	assert.Equal(t, apperror.CodeSagaCancelled, res.Failure.Code)
	assert.Equal(t, "c", res.Failure.Step)
}

func TestOrchestrator_StartedStepSurvivesCancellation(t *testing.T) {
	j := &journal{}
	o := newOrchestrator(t, testPolicy(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	transfer := j.step("b", nil)
	transfer.Action = func(stepCtx context.Context) error {
		calls++
		cancel()
		select {
		case <-stepCtx.Done():
			return stepCtx.Err()
		case <-time.After(20 * time.Millisecond):
		}
		if calls == 1 {
			return apperror.New(apperror.CodeServiceUnavailable)
		}
		j.add("do:b")
		return nil
	}

	res := o.Run(ctx, domain.Saga{
		Name:  "cancel_mid_step",
		Steps: []domain.Step{j.step("a", nil), transfer, j.step("c", nil)},
	})

	assert.Equal(t, 2, calls)
	assert.Equal(t, domain.StatusCompensated, res.Status)
	assert.Equal(t, []string{"do:a", "do:b", "undo:b", "undo:a"}, j.list())
	require.NotNil(t, res.Failure)
	assert.Equal(t, apperror.CodeSagaCancelled, res.Failure.Code)
	assert.Equal(t, "c", res.Failure.Step)
}

func TestOrchestrator_RetriesTransientErrors(t *testing.T) {
	o := newOrchestrator(t, testPolicy(), nil)
	calls := 0

	res := o.Run(context.Background(), domain.Saga{
		Name: "flaky",
		Steps: []domain.Step{{
			Name: "call",
			Action: func(context.Context) error {
				calls++
				if calls < 3 {
					return apperror.New(apperror.CodeServiceUnavailable)
				}
				return nil
			},
		}},
	})

	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, 3, calls)
	require.Len(t, res.Trace, 1)
	assert.Equal(t, 3, res.Trace[0].Attempts)
}

func TestOrchestrator_NeverRetriesInvariantViolations(t *testing.T) {
	o := newOrchestrator(t, testPolicy(), nil)
	calls := 0

	res := o.Run(context.Background(), domain.Saga{
		Name: "invariant",
		Steps: []domain.Step{{
			Name: "mint",
			Action: func(context.Context) error {
				calls++
				return apperror.New(apperror.CodeInsufficientCollateral)
			},
		}},
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, domain.StatusCompensated, res.Status)
	assert.Equal(t, domain.CategoryInvariant, res.Failure.Category)
}

func TestOrchestrator_NoRetryStepRunsOnce(t *testing.T) {
	o := newOrchestrator(t, testPolicy(), nil)
	calls := 0

	res := o.Run(context.Background(), domain.Saga{
		Name: "payout",
		Steps: []domain.Step{{
			Name:    "bank",
			NoRetry: true,
			Action: func(context.Context) error {
				calls++
				return apperror.New(apperror.CodeServiceUnavailable)
			},
		}},
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, domain.CategoryTransient, res.Failure.Category)
}

func TestOrchestrator_StepTimeoutIsAFailure(t *testing.T) {
	policy := testPolicy()
	policy.MaxAttempts = 1
	policy.AttemptTimeout = 20 * time.Millisecond
	o := newOrchestrator(t, policy, nil)

	res := o.Run(context.Background(), domain.Saga{
		Name: "slow",
		Steps: []domain.Step{{
			Name: "hang",
			Action: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		}},
	})

	assert.Equal(t, domain.StatusCompensated, res.Status)
	assert.Equal(t, apperror.CodeServiceTimeout, res.Failure.Code)
	assert.Equal(t, domain.CategoryTransient, res.Failure.Category)
}

func TestOrchestrator_CompensationFailureIsFatalButUnwindContinues(t *testing.T) {
	j := &journal{}
	policy := testPolicy()
	policy.MaxAttempts = 1
	o := newOrchestrator(t, policy, nil)

	broken := j.step("b", nil)
	broken.Compensation = func(context.Context) error {
		j.add("undo:b")
		return errors.New("ledger offline")
	}

	res := o.Run(context.Background(), domain.Saga{
		Name:  "broken",
		Steps: []domain.Step{j.step("a", nil), broken, j.step("c", apperror.New(apperror.CodeDebtExceeded))},
	})

	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, []string{"do:a", "do:b", "do:c", "undo:b", "undo:a"}, j.list())
	require.Len(t, res.CompensationFailures, 1)
	assert.Equal(t, "b", res.CompensationFailures[0].Step)
	assert.Equal(t, domain.CategoryCompensation, res.CompensationFailures[0].Category)
	assert.Equal(t, apperror.CodeCompensationFailed, apperror.GetCode(res.Err()))
}

func TestOrchestrator_CompensationsIgnoreCancellation(t *testing.T) {
	o := newOrchestrator(t, testPolicy(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	var undoErr error

	res := o.Run(ctx, domain.Saga{
		Name: "detached",
		Steps: []domain.Step{
			{
				Name: "a",
				Action: func(context.Context) error {
					cancel()
					return nil
				},
				Compensation: func(ctx context.Context) error {
					undoErr = ctx.Err()
					return nil
				},
			},
			{Name: "b", Action: func(context.Context) error { return nil }},
		},
	})

	assert.Equal(t, domain.StatusCompensated, res.Status)
	assert.NoError(t, undoErr)
}
