// Package domain models deposits and withdrawals as event-sourced
// aggregates. Both share one lifecycle: Initiated, then Completed or Failed.
package domain

import (
	"fmt"
	"time"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// Kind tells a deposit from a withdrawal.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
)

// AggregateType is the event store stream type for the kind.
func (k Kind) AggregateType() string { return string(k) }

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k == KindDeposit || k == KindWithdrawal }

// Status is the lifecycle stage of a funding transaction.
type Status string

const (
	StatusInitiated Status = "INITIATED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Event type names as stored in the event log.
const (
	EventDepositInitiated    = "DepositInitiated"
	EventDepositCompleted    = "DepositCompleted"
	EventDepositFailed       = "DepositFailed"
	EventWithdrawalInitiated = "WithdrawalInitiated"
	EventWithdrawalCompleted = "WithdrawalCompleted"
	EventWithdrawalFailed    = "WithdrawalFailed"
)

// Event is a funding state change.
type Event interface {
	EventType() string
	OccurredAt() time.Time
}

// Meta is common to every funding event.
type Meta struct {
	ID   string    `json:"id"`
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`
}

func (m Meta) OccurredAt() time.Time { return m.At }

// Initiated opens a deposit or withdrawal.
type Initiated struct {
	Meta
	Account string       `json:"account"`
	Amount  asset.Amount `json:"amount"`
	// Destination is the external bank account of a withdrawal.
	Destination string `json:"destination,omitempty"`
}

func (e Initiated) EventType() string {
	if e.Kind == KindDeposit {
		return EventDepositInitiated
	}
	return EventWithdrawalInitiated
}

// Completed settles the transaction against an external reference.
type Completed struct {
	Meta
	ExternalTxID string `json:"external_tx_id"`
}

func (e Completed) EventType() string {
	if e.Kind == KindDeposit {
		return EventDepositCompleted
	}
	return EventWithdrawalCompleted
}

// Failed ends the transaction. ManualReconciliation is set when funds may
// already have left the system.
type Failed struct {
	Meta
	Reason               string `json:"reason"`
	ManualReconciliation bool   `json:"manual_reconciliation"`
	ExternalTxID         string `json:"external_tx_id,omitempty"`
}

func (e Failed) EventType() string {
	if e.Kind == KindDeposit {
		return EventDepositFailed
	}
	return EventWithdrawalFailed
}

// State is a funding transaction as of Version.
type State struct {
	ID                   string       `json:"id"`
	Kind                 Kind         `json:"kind"`
	Account              string       `json:"account"`
	Amount               asset.Amount `json:"amount"`
	Destination          string       `json:"destination,omitempty"`
	ExternalTxID         string       `json:"external_tx_id,omitempty"`
	Status               Status       `json:"status"`
	FailureReason        string       `json:"failure_reason,omitempty"`
	ManualReconciliation bool         `json:"manual_reconciliation"`
	Version              int64        `json:"version"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

func (s State) Exists() bool { return s.Version > 0 }

// IsTerminal is true once Completed or Failed.
func (s State) IsTerminal() bool { return s.Status == StatusCompleted || s.Status == StatusFailed }

// Apply folds one event into s.
func Apply(s State, e Event) State {
	switch ev := e.(type) {
	case Initiated:
		s.ID = ev.ID
		s.Kind = ev.Kind
		s.Account = ev.Account
		s.Amount = ev.Amount
		s.Destination = ev.Destination
		s.Status = StatusInitiated
	case Completed:
		s.ExternalTxID = ev.ExternalTxID
		s.Status = StatusCompleted
	case Failed:
		s.Status = StatusFailed
		s.FailureReason = ev.Reason
		s.ManualReconciliation = ev.ManualReconciliation
		if ev.ExternalTxID != "" {
			s.ExternalTxID = ev.ExternalTxID
		}
	default:
		return s
	}
	s.Version++
	s.UpdatedAt = e.OccurredAt()
	return s
}

// Initiate decides a new transaction.
func Initiate(s State, id string, kind Kind, account string, amount asset.Amount, destination string, at time.Time) (Initiated, error) {
	if s.Exists() {
		return Initiated{}, apperror.New(apperror.CodeInvalidState,
			apperror.WithContext(fmt.Sprintf("%s %s already exists", kind, id)), apperror.WithRetryable(false))
	}
	switch {
	case !kind.Valid():
		return Initiated{}, apperror.Validation(fmt.Sprintf("unknown funding kind %q", kind))
	case id == "" || account == "":
		return Initiated{}, apperror.Validation("funding id and account are required")
	case !amount.IsPositive():
		return Initiated{}, apperror.Validation("funding amount must be positive")
	case kind == KindWithdrawal && destination == "":
		return Initiated{}, apperror.Validation("withdrawal destination is required")
	}
	return Initiated{
		Meta:        Meta{ID: id, Kind: kind, At: at},
		Account:     account,
		Amount:      amount,
		Destination: destination,
	}, nil
}

// Complete decides settlement.
func Complete(s State, externalTxID string, at time.Time) (Completed, error) {
	if err := pending(s); err != nil {
		return Completed{}, err
	}
	if externalTxID == "" {
		return Completed{}, apperror.Validation("external transaction id is required")
	}
	return Completed{Meta: Meta{ID: s.ID, Kind: s.Kind, At: at}, ExternalTxID: externalTxID}, nil
}

// Fail decides failure. Failing an already failed transaction returns
// ok=false and no error so compensations can repeat it.
func Fail(s State, reason string, manual bool, externalTxID string, at time.Time) (Failed, bool, error) {
	if s.Exists() && s.Status == StatusFailed {
		return Failed{}, false, nil
	}
	if err := pending(s); err != nil {
		return Failed{}, false, err
	}
	return Failed{
		Meta:                 Meta{ID: s.ID, Kind: s.Kind, At: at},
		Reason:               reason,
		ManualReconciliation: manual,
		ExternalTxID:         externalTxID,
	}, true, nil
}

func pending(s State) error {
	if !s.Exists() {
		return apperror.NotFound(apperror.CodeNotFound, "funding transaction")
	}
	if s.Status != StatusInitiated {
		return apperror.New(apperror.CodeInvalidState,
			apperror.WithContext(fmt.Sprintf("%s %s is %s", s.Kind, s.ID, s.Status)), apperror.WithRetryable(false))
	}
	return nil
}
