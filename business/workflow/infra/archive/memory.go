// Package archive stores terminal saga results.
package archive

import (
	"context"
	"sync"

	"github.com/fd1az/stablecoin-engine/business/workflow/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

// Memory keeps results in process, newest last.
type Memory struct {
	mu      sync.RWMutex
	results []domain.Result
	byID    map[string]int
}

// NewMemory creates an empty archive.
func NewMemory() *Memory {
	return &Memory{byID: make(map[string]int)}
}

// Put stores r, replacing an earlier result with the same saga id.
func (m *Memory) Put(_ context.Context, r domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byID[r.SagaID]; ok {
		m.results[i] = r
		return nil
	}
	m.byID[r.SagaID] = len(m.results)
	m.results = append(m.results, r)
	return nil
}

// Get returns the result of one saga.
func (m *Memory) Get(_ context.Context, sagaID string) (domain.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[sagaID]
	if !ok {
		return domain.Result{}, apperror.NotFound(apperror.CodeNotFound, "saga "+sagaID)
	}
	return m.results[i], nil
}

// All returns every result in archive order.
func (m *Memory) All() []domain.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Result(nil), m.results...)
}
