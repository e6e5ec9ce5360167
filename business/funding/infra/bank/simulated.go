package bank

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/fd1az/stablecoin-engine/business/funding/app"
)

// Simulated is an in-process bank. Repeated references return the first
// transaction id. Failures can be queued per operation.
type Simulated struct {
	mu        sync.Mutex
	txs       map[string]string
	transfers []app.TransferRequest
	failures  map[string][]error
}

var _ app.Bank = (*Simulated)(nil)

// NewSimulated creates an in-process bank.
func NewSimulated() *Simulated {
	return &Simulated{
		txs:      make(map[string]string),
		failures: make(map[string][]error),
	}
}

// FailNext makes the next call of op ("deposit" or "transfer") return err.
func (s *Simulated) FailNext(op string, err error) {
	s.mu.Lock()
	s.failures[op] = append(s.failures[op], err)
	s.mu.Unlock()
}

// Transfers returns the accepted payouts.
func (s *Simulated) Transfers() []app.TransferRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]app.TransferRequest(nil), s.transfers...)
}

func (s *Simulated) ConfirmDeposit(ctx context.Context, req app.TransferRequest) (string, error) {
	return s.call(ctx, "deposit", req)
}

func (s *Simulated) InitiateTransfer(ctx context.Context, req app.TransferRequest) (string, error) {
	return s.call(ctx, "transfer", req)
}

func (s *Simulated) call(ctx context.Context, op string, req app.TransferRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if queued := s.failures[op]; len(queued) > 0 {
		s.failures[op] = queued[1:]
		return "", queued[0]
	}
	key := op + ":" + req.Reference
	if tx, ok := s.txs[key]; ok {
		return tx, nil
	}
	tx := "sim-" + uuid.NewString()
	s.txs[key] = tx
	if op == "transfer" {
		s.transfers = append(s.transfers, req)
	}
	return tx, nil
}
