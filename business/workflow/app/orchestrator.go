// Package app runs sagas, builds the business sagas over the position,
// ledger, funding and auction contexts, and sweeps positions for margin
// calls and liquidations.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/stablecoin-engine/business/workflow/domain"
	"github.com/fd1az/stablecoin-engine/internal/apm"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/logger"
	"github.com/fd1az/stablecoin-engine/internal/retry"
)

const (
	tracerName = "github.com/fd1az/stablecoin-engine/business/workflow"
	meterName  = "github.com/fd1az/stablecoin-engine/business/workflow"
)

// Archive keeps terminal saga results for audit.
type Archive interface {
	Put(ctx context.Context, r domain.Result) error
}

// OrchestratorConfig bounds step execution.
type OrchestratorConfig struct {
	// Retry applies to actions and compensations. Its AttemptTimeout is the
	// per-step timeout.
	Retry retry.Policy
	// CompensationTimeout caps the whole compensation run, which is detached
	// from the caller's cancellation.
	CompensationTimeout time.Duration
}

type orchestratorMetrics struct {
	sagas    metric.Int64Counter
	duration metric.Float64Histogram
	comps    metric.Int64Counter
}

// Orchestrator executes sagas. Steps of one saga run sequentially; separate
// Run calls are independent and may run concurrently.
type Orchestrator struct {
	cfg     OrchestratorConfig
	archive Archive
	logger  logger.LoggerInterface
	tracer  apm.Tracer
	metrics *orchestratorMetrics
	now     func() time.Time
}

// NewOrchestrator creates an Orchestrator. archive may be nil.
func NewOrchestrator(cfg OrchestratorConfig, archive Archive, log logger.LoggerInterface) (*Orchestrator, error) {
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = time.Minute
	}
	o := &Orchestrator{
		cfg:     cfg,
		archive: archive,
		logger:  log,
		tracer:  apm.NewTracer(tracerName),
		now:     func() time.Time { return time.Now().UTC() },
	}
	if err := o.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return o, nil
}

func (o *Orchestrator) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	o.metrics = &orchestratorMetrics{}
	o.metrics.sagas, err = meter.Int64Counter(
		"sagas_total",
		metric.WithDescription("Sagas run, by name and final status"),
	)
	if err != nil {
		return err
	}
	o.metrics.duration, err = meter.Float64Histogram(
		"saga_duration_seconds",
		metric.WithDescription("Saga wall time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}
	o.metrics.comps, err = meter.Int64Counter(
		"saga_compensations_total",
		metric.WithDescription("Compensations run, by saga and outcome"),
	)
	return err
}

// compensation is a pushed undo closure, run at most once.
type compensation struct {
	step   string
	run    domain.Action
	policy retry.Policy
	once   sync.Once
	err    error
}

// Run executes s. If step k fails, or ctx is cancelled before step k starts,
// the compensations of steps k-1..1 run in reverse order. Cancellation is
// only observed between steps.
func (o *Orchestrator) Run(ctx context.Context, s domain.Saga) domain.Result {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	ctx, span := o.tracer.Start(ctx, "saga."+s.Name, attribute.String("saga.id", s.ID))
	defer span.End()

	res := domain.Result{
		SagaID:    s.ID,
		Name:      s.Name,
		Status:    domain.StatusRunning,
		StartedAt: o.now(),
	}
	var stack []*compensation

	for _, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			res.Failure = &domain.Failure{
				Category: domain.CategoryCancelled,
				Code:     apperror.CodeSagaCancelled,
				Message:  "cancelled before step: " + err.Error(),
				Step:     step.Name,
			}
			break
		}

		rec, err := o.runAction(ctx, s, step)
		res.Trace = append(res.Trace, rec)
		if err != nil {
			res.Failure = &domain.Failure{
				Category: domain.Categorize(err),
				Code:     apperror.GetCode(err),
				Message:  err.Error(),
				Step:     step.Name,
			}
			span.NoticeError(err)
			o.logger.Warn(ctx, "saga step failed",
				"saga", s.Name, "saga_id", s.ID, "step", step.Name,
				"category", string(res.Failure.Category), "error", err)
			break
		}
		if step.Compensation != nil {
			policy := o.cfg.Retry
			if step.Nested {
				policy = retry.NoRetry(0)
			}
			stack = append(stack, &compensation{step: step.Name, run: step.Compensation, policy: policy})
		}
	}

	if res.Failure == nil {
		res.Status = domain.StatusCompleted
	} else {
		res.Status = domain.StatusCompensating
		o.compensate(ctx, s, stack, &res)
	}
	res.FinishedAt = o.now()
	span.SetAttributes(attribute.String("saga.status", string(res.Status)))
	o.finish(ctx, res)
	return res
}

func (o *Orchestrator) runAction(ctx context.Context, s domain.Saga, step domain.Step) (domain.StepRecord, error) {
	policy := o.cfg.Retry
	switch {
	case step.Nested:
		policy = retry.NoRetry(0)
	case step.NoRetry:
		policy = retry.NoRetry(policy.AttemptTimeout)
	}
	rec := domain.StepRecord{Name: step.Name}
	start := o.now()

	// A started step runs to completion. Cancellation is honoured between
	// steps only; nested sagas check it between their own steps.
	actx := ctx
	if !step.Nested {
		actx = context.WithoutCancel(ctx)
	}
	err := retry.Run(actx, policy, func(ctx context.Context) error {
		rec.Attempts++
		return step.Action(ctx)
	}, func(err error, next time.Duration) {
		o.logger.Debug(ctx, "retrying saga step",
			"saga", s.Name, "saga_id", s.ID, "step", step.Name, "attempt", rec.Attempts, "backoff", next, "error", err)
	})

	rec.Duration = o.now().Sub(start)
	if err != nil {
		rec.Err = err.Error()
	}
	return rec, err
}

// compensate unwinds the stack. It runs detached from ctx's cancellation and
// never stops early: every compensation gets its chance.
func (o *Orchestrator) compensate(ctx context.Context, s domain.Saga, stack []*compensation, res *domain.Result) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.CompensationTimeout)
	defer cancel()

	for i := len(stack) - 1; i >= 0; i-- {
		c := stack[i]
		rec := domain.StepRecord{Name: c.step, Compensation: true}
		start := o.now()

		c.once.Do(func() {
			c.err = retry.Run(cctx, c.policy, func(ctx context.Context) error {
				rec.Attempts++
				return c.run(ctx)
			}, nil)
		})

		rec.Duration = o.now().Sub(start)
		outcome := "ok"
		if c.err != nil {
			outcome = "failed"
			rec.Err = c.err.Error()
			code := apperror.GetCode(c.err)
			if code != apperror.CodeManualReconciliationRequired {
				code = apperror.CodeCompensationFailed
			}
			res.CompensationFailures = append(res.CompensationFailures, domain.Failure{
				Category: domain.CategoryCompensation,
				Code:     code,
				Message:  c.err.Error(),
				Step:     c.step,
			})
			o.logger.Error(ctx, "saga compensation failed, manual intervention required",
				"saga", s.Name, "saga_id", s.ID, "step", c.step, "code", string(code), "error", c.err)
		}
		res.Trace = append(res.Trace, rec)
		o.metrics.comps.Add(ctx, 1, metric.WithAttributes(
			attribute.String("saga", s.Name),
			attribute.String("outcome", outcome),
		))
	}

	if len(res.CompensationFailures) > 0 {
		res.Status = domain.StatusFailed
	} else {
		res.Status = domain.StatusCompensated
	}
}

func (o *Orchestrator) finish(ctx context.Context, res domain.Result) {
	attrs := metric.WithAttributes(
		attribute.String("saga", res.Name),
		attribute.String("status", string(res.Status)),
	)
	o.metrics.sagas.Add(ctx, 1, attrs)
	o.metrics.duration.Record(ctx, res.FinishedAt.Sub(res.StartedAt).Seconds(), attrs)

	if res.Status == domain.StatusCompleted {
		o.logger.Info(ctx, "saga completed", "saga", res.Name, "saga_id", res.SagaID, "steps", len(res.Trace))
	} else {
		o.logger.Warn(ctx, "saga did not complete",
			"saga", res.Name, "saga_id", res.SagaID, "status", string(res.Status), "failure", res.Failure)
	}

	if o.archive == nil {
		return
	}
	if err := o.archive.Put(context.WithoutCancel(ctx), res); err != nil {
		o.logger.Warn(ctx, "failed to archive saga", "saga_id", res.SagaID, "error", err)
	}
}
