// Package domain models the event-sourced collateralized debt position.
// State is only ever produced by folding events with Apply.
package domain

import (
	"time"

	auction "github.com/fd1az/stablecoin-engine/business/auction/domain"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// AggregateType names position streams in the event store.
const AggregateType = "position"

// Status is the lifecycle stage of a position.
type Status string

const (
	StatusOpen         Status = "OPEN"
	StatusMarginCalled Status = "MARGIN_CALLED"
	StatusLiquidating  Status = "LIQUIDATING"
	StatusClosed       Status = "CLOSED"
)

// State is a position as of Version.
type State struct {
	ID              string          `json:"id"`
	Owner           string          `json:"owner"`
	Stablecoin      asset.Code      `json:"stablecoin"`
	CollateralAsset asset.Code      `json:"collateral_asset"`
	Collateral      asset.Amount    `json:"collateral"`
	Debt            asset.Amount    `json:"debt"`
	Status          Status          `json:"status"`
	Version         int64           `json:"version"`
	OpenedAt        time.Time       `json:"opened_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Liquidation     *auction.Result `json:"liquidation,omitempty"`
}

// Exists is false for the zero state of an unknown id.
func (s State) Exists() bool { return s.Version > 0 }

// IsClosed reports a terminal position.
func (s State) IsClosed() bool { return s.Status == StatusClosed }

// Apply folds one event into s. Version advances by exactly one per event.
func Apply(s State, e Event) State {
	switch ev := e.(type) {
	case PositionOpened:
		s = State{
			ID:              ev.PositionID,
			Owner:           ev.Owner,
			Stablecoin:      ev.Stablecoin,
			CollateralAsset: ev.CollateralAsset,
			Collateral:      ev.Collateral,
			Debt:            ev.Debt,
			Status:          StatusOpen,
			Version:         s.Version,
			OpenedAt:        ev.At,
		}
	case CollateralAdded:
		s.Collateral = s.Collateral.MustAdd(ev.Amount)
		s.Status = StatusOpen
	case DebtBurned:
		s.Debt = s.Debt.MustSub(ev.Amount)
		if ev.Released.IsPositive() {
			s.Collateral = s.Collateral.MustSub(ev.Released)
		}
		s.Status = StatusOpen
		if s.Debt.IsZero() && s.Collateral.IsZero() {
			s.Status = StatusClosed
		}
	case MarginCallIssued:
		s.Status = StatusMarginCalled
	case PositionLiquidated:
		r := ev.Result
		s.Liquidation = &r
		s.Status = StatusLiquidating
	case LiquidationSettled:
		s.Collateral = s.Collateral.MustSub(s.Collateral)
		s.Debt = s.Debt.MustSub(s.Debt)
		s.Status = StatusClosed
	default:
		return s
	}
	s.Version++
	s.UpdatedAt = e.OccurredAt()
	return s
}

// Fold replays events on top of s.
func Fold(s State, events ...Event) State {
	for _, e := range events {
		s = Apply(s, e)
	}
	return s
}
