// Package domain holds the liquidation auction rules.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// MaxBonus bounds the configurable liquidation bonus.
var MaxBonus = asset.RatioFromString("0.5")

// Bid is a liquidator's offer to repay a position's debt.
type Bid struct {
	BidderID string
	// Amount is denominated in the valuation quote asset.
	Amount asset.Amount
	// FundsAttested is set once the bidder's balance has been verified.
	FundsAttested bool
	PlacedAt      time.Time
}

// Lot is a position put up for liquidation.
type Lot struct {
	PositionID string
	Owner      string
	Collateral asset.Amount
	// DebtValue is the outstanding debt priced in the quote asset.
	DebtValue asset.Amount
}

// Result is the outcome of one auction.
type Result struct {
	PositionID        string       `json:"position_id"`
	HasWinner         bool         `json:"has_winner"`
	WinnerID          string       `json:"winner_id,omitempty"`
	BidAmount         asset.Amount `json:"bid_amount"`
	CollateralAwarded asset.Amount `json:"collateral_awarded"`
	ExcessCollateral  asset.Amount `json:"excess_collateral"`
}

// ValidateBonus checks a bonus rate lies in [0, MaxBonus].
func ValidateBonus(bonus asset.Ratio) error {
	if bonus.Decimal().IsNegative() || MaxBonus.LessThan(bonus) {
		return apperror.New(apperror.CodeValidationError,
			apperror.WithContext(fmt.Sprintf("liquidation bonus %s outside [0, %s]", bonus, MaxBonus)))
	}
	return nil
}

// valid reports whether b covers the debt with attested funds.
func (b Bid) valid(debtValue asset.Amount) bool {
	if !b.FundsAttested || b.Amount.Code() != debtValue.Code() {
		return false
	}
	return !b.Amount.LessThan(debtValue)
}

// RunAuction picks the highest valid bid and splits the collateral between
// the winner and the owner. price is the collateral priced in the debt
// value's quote asset. Equal bids resolve to the earliest placed.
//
// Without a valid bid the result has no winner and the error is a retryable
// AuctionFailed.
func RunAuction(lot Lot, price asset.Price, bids []Bid, bonus asset.Ratio) (Result, error) {
	result := Result{
		PositionID:        lot.PositionID,
		CollateralAwarded: zeroOf(lot.Collateral),
		ExcessCollateral:  lot.Collateral,
	}
	if err := ValidateBonus(bonus); err != nil {
		return result, err
	}
	if price.Base() != lot.Collateral.Code() || price.Quote() != lot.DebtValue.Code() {
		return result, apperror.New(apperror.CodeValidationError,
			apperror.WithContext(fmt.Sprintf("price %s does not value %s debt in %s",
				price.Pair(), lot.Collateral.Code(), lot.DebtValue.Code())))
	}

	var winner *Bid
	for i := range bids {
		b := &bids[i]
		if !b.valid(lot.DebtValue) {
			continue
		}
		if winner == nil || winner.Amount.LessThan(b.Amount) ||
			(winner.Amount.Equal(b.Amount) && b.PlacedAt.Before(winner.PlacedAt)) {
			winner = b
		}
	}
	if winner == nil {
		return result, apperror.New(apperror.CodeAuctionFailed,
			apperror.WithContext(fmt.Sprintf("position %s: no bid covers debt value %s", lot.PositionID, lot.DebtValue)))
	}

	award, err := Award(lot, price, bonus)
	if err != nil {
		return result, err
	}
	excess, err := lot.Collateral.Sub(award)
	if err != nil {
		return result, err
	}

	result.HasWinner = true
	result.WinnerID = winner.BidderID
	result.BidAmount = winner.Amount
	result.CollateralAwarded = award
	result.ExcessCollateral = excess
	return result, nil
}

// Award is debt / price × (1 + bonus) in collateral units, capped at the
// lot's collateral.
func Award(lot Lot, price asset.Price, bonus asset.Ratio) (asset.Amount, error) {
	debtInCollateral, err := price.ConvertInverse(lot.DebtValue)
	if err != nil {
		return asset.Amount{}, err
	}
	withBonus := debtInCollateral.MulRatio(asset.NewRatio(decimal.NewFromInt(1).Add(bonus.Decimal())))
	return withBonus.Min(lot.Collateral)
}

func zeroOf(a asset.Amount) asset.Amount {
	return a.MulRatio(asset.NewRatio(decimal.Zero))
}
