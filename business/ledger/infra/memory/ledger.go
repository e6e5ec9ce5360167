// Package memory is an in-process ledger with an append-only journal.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fd1az/stablecoin-engine/business/ledger/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

var _ domain.Ledger = (*Ledger)(nil)

type accountKey struct {
	account string
	code    asset.Code
}

type refKey struct {
	kind domain.EntryKind
	ref  string
}

// Ledger keeps balances in memory. Every movement is journaled.
type Ledger struct {
	registry *asset.Registry
	logger   logger.LoggerInterface
	now      func() time.Time

	mu       sync.Mutex
	balances map[accountKey]domain.Balance
	applied  map[refKey]struct{}
	journal  []domain.Entry
}

// New creates an empty ledger.
func New(registry *asset.Registry, log logger.LoggerInterface) *Ledger {
	return &Ledger{
		registry: registry,
		logger:   log,
		now:      time.Now,
		balances: make(map[accountKey]domain.Balance),
		applied:  make(map[refKey]struct{}),
	}
}

// Credit adds amount to the available balance.
func (l *Ledger) Credit(ctx context.Context, account string, amount asset.Amount, ref string) error {
	return l.apply(ctx, account, domain.EntryCredit, amount, ref, func(b domain.Balance) (domain.Balance, error) {
		avail, err := b.Available.Add(amount)
		if err != nil {
			return b, err
		}
		b.Available = avail
		return b, nil
	})
}

// Debit removes amount from the available balance.
func (l *Ledger) Debit(ctx context.Context, account string, amount asset.Amount, ref string) error {
	return l.apply(ctx, account, domain.EntryDebit, amount, ref, func(b domain.Balance) (domain.Balance, error) {
		avail, err := subtract(b.Available, amount, account)
		if err != nil {
			return b, err
		}
		b.Available = avail
		return b, nil
	})
}

// Lock moves amount from available to locked.
func (l *Ledger) Lock(ctx context.Context, account string, amount asset.Amount, ref string) error {
	return l.apply(ctx, account, domain.EntryLock, amount, ref, func(b domain.Balance) (domain.Balance, error) {
		avail, err := subtract(b.Available, amount, account)
		if err != nil {
			return b, err
		}
		locked, err := b.Locked.Add(amount)
		if err != nil {
			return b, err
		}
		b.Available, b.Locked = avail, locked
		return b, nil
	})
}

// Release moves amount from locked back to available.
func (l *Ledger) Release(ctx context.Context, account string, amount asset.Amount, ref string) error {
	return l.apply(ctx, account, domain.EntryRelease, amount, ref, func(b domain.Balance) (domain.Balance, error) {
		locked, err := subtract(b.Locked, amount, account)
		if err != nil {
			return b, err
		}
		avail, err := b.Available.Add(amount)
		if err != nil {
			return b, err
		}
		b.Available, b.Locked = avail, locked
		return b, nil
	})
}

// Settle removes amount from the locked balance.
func (l *Ledger) Settle(ctx context.Context, account string, amount asset.Amount, ref string) error {
	return l.apply(ctx, account, domain.EntrySettle, amount, ref, func(b domain.Balance) (domain.Balance, error) {
		locked, err := subtract(b.Locked, amount, account)
		if err != nil {
			return b, err
		}
		b.Locked = locked
		return b, nil
	})
}

// Balance returns the account's holding of code, zero when never touched.
func (l *Ledger) Balance(_ context.Context, account string, code asset.Code) (domain.Balance, error) {
	a, err := l.registry.Lookup(code)
	if err != nil {
		return domain.Balance{}, apperror.New(apperror.CodeValidationError, apperror.WithCause(err))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(account, a), nil
}

// Journal returns a copy of every applied entry in order.
func (l *Ledger) Journal() []domain.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Entry, len(l.journal))
	copy(out, l.journal)
	return out
}

func (l *Ledger) balanceLocked(account string, a *asset.Asset) domain.Balance {
	b, ok := l.balances[accountKey{account, a.Code()}]
	if !ok {
		return domain.Balance{Available: asset.Zero(a), Locked: asset.Zero(a)}
	}
	return b
}

func (l *Ledger) apply(ctx context.Context, account string, kind domain.EntryKind, amount asset.Amount, ref string,
	fn func(domain.Balance) (domain.Balance, error)) error {
	if account == "" {
		return apperror.Validation("ledger account is required")
	}
	if !amount.IsPositive() {
		return apperror.Validation(fmt.Sprintf("ledger %s amount must be positive, got %s", kind, amount))
	}
	a, err := l.registry.Lookup(amount.Code())
	if err != nil {
		return apperror.New(apperror.CodeValidationError, apperror.WithCause(err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if ref != "" {
		if _, done := l.applied[refKey{kind, ref}]; done {
			l.logger.Debug(ctx, "ledger movement already applied", "kind", kind, "ref", ref)
			return nil
		}
	}

	next, err := fn(l.balanceLocked(account, a))
	if err != nil {
		return err
	}
	l.balances[accountKey{account, a.Code()}] = next
	if ref != "" {
		l.applied[refKey{kind, ref}] = struct{}{}
	}
	l.journal = append(l.journal, domain.Entry{
		ID:      uuid.NewString(),
		Account: account,
		Kind:    kind,
		Amount:  amount,
		Ref:     ref,
		At:      l.now(),
	})
	return nil
}

func subtract(from, amount asset.Amount, account string) (asset.Amount, error) {
	if from.LessThan(amount) {
		return asset.Amount{}, apperror.New(apperror.CodeInsufficientBalance,
			apperror.WithContext(fmt.Sprintf("%s holds %s, needs %s", account, from, amount)))
	}
	return from.Sub(amount)
}
