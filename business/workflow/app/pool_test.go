package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/stablecoin-engine/business/workflow/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

func countingSaga(name string, n *atomic.Int32) domain.Saga {
	return domain.Saga{
		Name: name,
		Steps: []domain.Step{{
			Name: "count",
			Action: func(context.Context) error {
				n.Add(1)
				return nil
			},
		}},
	}
}

func TestPool_RunsSagas(t *testing.T) {
	p := NewPool(newOrchestrator(t, testPolicy(), nil), 3, 4, &mockLogger{})
	p.Start()
	defer p.Stop()

	var n atomic.Int32
	results := make(chan domain.Result, 20)
	for range 20 {
		go func() { results <- p.Run(context.Background(), countingSaga("count", &n)) }()
	}
	for range 20 {
		res := <-results
		assert.Equal(t, domain.StatusCompleted, res.Status)
	}
	assert.Equal(t, int32(20), n.Load())
}

func TestPool_RejectsWhenNotRunning(t *testing.T) {
	p := NewPool(newOrchestrator(t, testPolicy(), nil), 1, 1, &mockLogger{})
	var n atomic.Int32

	_, err := p.Submit(context.Background(), countingSaga("early", &n))
	assert.Equal(t, apperror.CodeServiceUnavailable, apperror.GetCode(err))

	p.Start()
	p.Stop()

	res := p.Run(context.Background(), countingSaga("late", &n))
	assert.Equal(t, domain.StatusCompensated, res.Status)
	require.NotNil(t, res.Failure)
	assert.Equal(t, apperror.CodeServiceUnavailable, res.Failure.Code)
	assert.Equal(t, "count", res.Failure.Step)
	assert.Zero(t, n.Load())
}

func TestPool_SubmitHonoursContextWhenFull(t *testing.T) {
	p := NewPool(newOrchestrator(t, testPolicy(), nil), 1, 1, &mockLogger{})
	p.Start()

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := domain.Saga{
		Name: "blocking",
		Steps: []domain.Step{{
			Name: "wait",
			Action: func(context.Context) error {
				close(started)
				<-release
				return nil
			},
		}},
	}

	first, err := p.Submit(context.Background(), blocking)
	require.NoError(t, err)
	<-started

	var n atomic.Int32
	queued, err := p.Submit(context.Background(), countingSaga("queued", &n))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Submit(ctx, countingSaga("overflow", &n))
	assert.Equal(t, apperror.CodeSagaCancelled, apperror.GetCode(err))

	close(release)
	assert.Equal(t, domain.StatusCompleted, (<-first).Status)
	assert.Equal(t, domain.StatusCompleted, (<-queued).Status)
	p.Stop()
	assert.Equal(t, int32(1), n.Load())
}
