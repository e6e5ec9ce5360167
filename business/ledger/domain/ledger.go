// Package domain defines the account ledger the stablecoin core moves funds
// through.
package domain

import (
	"context"
	"time"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// ErrInsufficientBalance is returned when a debit or lock exceeds the
// available balance.
var ErrInsufficientBalance = apperror.New(apperror.CodeInsufficientBalance)

// EntryKind classifies a journal entry.
type EntryKind string

const (
	EntryDebit   EntryKind = "debit"
	EntryCredit  EntryKind = "credit"
	EntryLock    EntryKind = "lock"
	EntryRelease EntryKind = "release"
	EntrySettle  EntryKind = "settle"
)

// Entry is one applied ledger movement.
type Entry struct {
	ID      string       `json:"id"`
	Account string       `json:"account"`
	Kind    EntryKind    `json:"kind"`
	Amount  asset.Amount `json:"amount"`
	// Ref makes the movement idempotent: a second call with the same kind and
	// ref is a no-op.
	Ref string    `json:"ref"`
	At  time.Time `json:"at"`
}

// Balance is an account's holding of one asset.
type Balance struct {
	Available asset.Amount `json:"available"`
	Locked    asset.Amount `json:"locked"`
}

// Total is available plus locked.
func (b Balance) Total() asset.Amount {
	return b.Available.MustAdd(b.Locked)
}

// Ledger moves funds between an account's available and locked balances and
// in or out of the system.
type Ledger interface {
	Debit(ctx context.Context, account string, amount asset.Amount, ref string) error
	Credit(ctx context.Context, account string, amount asset.Amount, ref string) error
	Balance(ctx context.Context, account string, code asset.Code) (Balance, error)
	// Lock moves amount from available to locked.
	Lock(ctx context.Context, account string, amount asset.Amount, ref string) error
	// Release moves amount from locked back to available.
	Release(ctx context.Context, account string, amount asset.Amount, ref string) error
	// Settle pays amount out of the locked balance.
	Settle(ctx context.Context, account string, amount asset.Amount, ref string) error
}
