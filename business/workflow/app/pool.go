package app

import (
	"context"
	"sync"

	"github.com/fd1az/stablecoin-engine/business/workflow/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

type job struct {
	ctx  context.Context
	saga domain.Saga
	done chan domain.Result
}

// Pool runs sagas on a fixed set of workers fed by a bounded queue.
type Pool struct {
	orch    *Orchestrator
	workers int
	queue   chan job
	logger  logger.LoggerInterface

	submitMu sync.RWMutex
	started  bool
	stopped  bool
	wg       sync.WaitGroup
}

// NewPool creates a pool. Start must be called before sagas are submitted.
func NewPool(orch *Orchestrator, workers, queueSize int, log logger.LoggerInterface) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		orch:    orch,
		workers: workers,
		queue:   make(chan job, queueSize),
		logger:  log,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.submitMu.Lock()
	defer p.submitMu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for range p.workers {
		p.wg.Add(1)
		go p.work()
	}
}

// Stop drains the queue and waits for running sagas to finish.
func (p *Pool) Stop() {
	p.submitMu.Lock()
	if p.stopped {
		p.submitMu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.submitMu.Unlock()

	p.wg.Wait()
}

// Submit queues s, blocking while the queue is full. The returned channel
// yields the saga's result.
func (p *Pool) Submit(ctx context.Context, s domain.Saga) (<-chan domain.Result, error) {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()
	if p.stopped || !p.started {
		return nil, apperror.New(apperror.CodeServiceUnavailable, apperror.WithContext("saga pool is not running"))
	}

	j := job{ctx: ctx, saga: s, done: make(chan domain.Result, 1)}
	select {
	case p.queue <- j:
		return j.done, nil
	case <-ctx.Done():
		return nil, apperror.New(apperror.CodeSagaCancelled, apperror.WithCause(ctx.Err()))
	}
}

// Run submits s and waits for its result. A saga that could not be queued
// reports a failure at its first step without running anything.
func (p *Pool) Run(ctx context.Context, s domain.Saga) domain.Result {
	done, err := p.Submit(ctx, s)
	if err != nil {
		step := ""
		if len(s.Steps) > 0 {
			step = s.Steps[0].Name
		}
		return domain.Result{
			SagaID: s.ID,
			Name:   s.Name,
			Status: domain.StatusCompensated,
			Failure: &domain.Failure{
				Category: domain.Categorize(err),
				Code:     apperror.GetCode(err),
				Message:  err.Error(),
				Step:     step,
			},
		}
	}
	return <-done
}

func (p *Pool) work() {
	defer p.wg.Done()
	for j := range p.queue {
		j.done <- p.orch.Run(j.ctx, j.saga)
	}
}
