// Package domain defines sagas: ordered steps with compensations, their
// outcome and the failure taxonomy reported to callers.
package domain

import (
	"context"
	"time"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

// Action runs or undoes one step. It must respect ctx.
type Action func(ctx context.Context) error

// Step is one unit of a saga. Compensation is nil for steps with nothing to
// undo. Compensations must be idempotent.
type Step struct {
	Name         string
	Action       Action
	Compensation Action
	// NoRetry marks actions that must run at most once per saga, such as a
	// call that starts an external payout.
	NoRetry bool
	// Nested marks steps that run a child saga. They run once and are bounded
	// by the child's own step timeouts, not by this saga's.
	Nested bool
}

// Saga is a named, ordered list of steps.
type Saga struct {
	ID    string
	Name  string
	Steps []Step
}

// Status is the saga state machine: Running, then Completed, or
// Compensating followed by Compensated or Failed.
type Status string

const (
	StatusRunning      Status = "RUNNING"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
	StatusFailed       Status = "FAILED"
)

// IsTerminal reports Completed, Compensated and Failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCompensated || s == StatusFailed
}

// Failure is the structured reason a saga did not complete.
type Failure struct {
	Category Category      `json:"category"`
	Code     apperror.Code `json:"code"`
	Message  string        `json:"message"`
	Step     string        `json:"step"`
}

// StepRecord traces one executed action or compensation.
type StepRecord struct {
	Name         string        `json:"name"`
	Compensation bool          `json:"compensation"`
	Attempts     int           `json:"attempts"`
	Err          string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Result is the outcome of one saga run.
type Result struct {
	SagaID     string       `json:"saga_id"`
	Name       string       `json:"name"`
	Status     Status       `json:"status"`
	Failure    *Failure     `json:"failure,omitempty"`
	// CompensationFailures lists compensations that did not succeed. Any
	// entry makes the saga Failed and requires an operator.
	CompensationFailures []Failure   `json:"compensation_failures,omitempty"`
	Trace                []StepRecord `json:"trace"`
	StartedAt            time.Time    `json:"started_at"`
	FinishedAt           time.Time    `json:"finished_at"`
}

// Succeeded is true for a Completed saga.
func (r Result) Succeeded() bool { return r.Status == StatusCompleted }

// Err converts a non-completed result into an error: StepFailed for a
// compensated saga, CompensationFailed (or ManualReconciliationRequired)
// when compensation itself failed.
func (r Result) Err() error {
	switch r.Status {
	case StatusCompleted:
		return nil
	case StatusFailed:
		code := apperror.CodeCompensationFailed
		for _, f := range r.CompensationFailures {
			if f.Code == apperror.CodeManualReconciliationRequired {
				code = f.Code
				break
			}
		}
		return apperror.New(code,
			apperror.WithContext(r.Name+" "+r.SagaID+": "+r.describe()),
			apperror.WithRetryable(false))
	default:
		code := apperror.CodeStepFailed
		retryable := false
		if r.Failure != nil {
			if r.Failure.Code != "" {
				code = r.Failure.Code
			}
			retryable = r.Failure.Category == CategoryConcurrency
		}
		return apperror.New(code,
			apperror.WithContext(r.Name+" "+r.SagaID+": "+r.describe()),
			apperror.WithRetryable(retryable))
	}
}

func (r Result) describe() string {
	if r.Failure == nil {
		return string(r.Status)
	}
	return r.Failure.Step + ": " + r.Failure.Message
}
