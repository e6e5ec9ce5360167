package domain

import (
	"time"

	auction "github.com/fd1az/stablecoin-engine/business/auction/domain"
	risk "github.com/fd1az/stablecoin-engine/business/risk/domain"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// Event type names as stored in the event log.
const (
	EventPositionOpened     = "PositionOpened"
	EventCollateralAdded    = "CollateralAdded"
	EventDebtBurned         = "DebtBurned"
	EventMarginCallIssued   = "MarginCallIssued"
	EventPositionLiquidated = "PositionLiquidated"
	EventLiquidationSettled = "LiquidationSettled"
)

// Event is a position state change.
type Event interface {
	EventType() string
	OccurredAt() time.Time
}

// Meta is common to every position event.
type Meta struct {
	PositionID string    `json:"position_id"`
	At         time.Time `json:"at"`
}

func (m Meta) OccurredAt() time.Time { return m.At }

// PositionOpened records a mint against fresh collateral.
type PositionOpened struct {
	Meta
	Owner           string       `json:"owner"`
	Stablecoin      asset.Code   `json:"stablecoin"`
	CollateralAsset asset.Code   `json:"collateral_asset"`
	Collateral      asset.Amount `json:"collateral"`
	Debt            asset.Amount `json:"debt"`
	Ratio           asset.Ratio  `json:"ratio"`
}

func (PositionOpened) EventType() string { return EventPositionOpened }

// CollateralAdded records a top-up.
type CollateralAdded struct {
	Meta
	Amount asset.Amount `json:"amount"`
}

func (CollateralAdded) EventType() string { return EventCollateralAdded }

// DebtBurned records repaid debt and the collateral released with it.
type DebtBurned struct {
	Meta
	Amount   asset.Amount `json:"amount"`
	Released asset.Amount `json:"released"`
}

func (DebtBurned) EventType() string { return EventDebtBurned }

// MarginCallIssued records the assessment that triggered the call.
type MarginCallIssued struct {
	Meta
	Ratio     asset.Ratio               `json:"ratio"`
	Threshold risk.LiquidationThreshold `json:"threshold"`
}

func (MarginCallIssued) EventType() string { return EventMarginCallIssued }

// PositionLiquidated records the winning auction.
type PositionLiquidated struct {
	Meta
	Ratio  asset.Ratio    `json:"ratio"`
	Result auction.Result `json:"result"`
}

func (PositionLiquidated) EventType() string { return EventPositionLiquidated }

// LiquidationSettled closes a liquidated position once the award and the
// excess have been paid out.
type LiquidationSettled struct {
	Meta
	Awarded asset.Amount `json:"awarded"`
	Excess  asset.Amount `json:"excess"`
	Repaid  asset.Amount `json:"repaid"`
}

func (LiquidationSettled) EventType() string { return EventLiquidationSettled }
