package domain

import (
	"fmt"
	"time"

	auction "github.com/fd1az/stablecoin-engine/business/auction/domain"
	risk "github.com/fd1az/stablecoin-engine/business/risk/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// Commands validate against the folded state and return exactly one event.
// None of them touch s.

// OpenPosition is the mint command.
type OpenPosition struct {
	PositionID string
	Owner      string
	Collateral asset.Amount
	Mint       asset.Amount
}

// Open decides a mint. v must price the collateral and the stablecoin.
func Open(s State, cmd OpenPosition, v risk.Valuation, at time.Time) (PositionOpened, error) {
	if s.Exists() {
		return PositionOpened{}, violation(apperror.CodeInvalidState,
			fmt.Sprintf("position %s already exists", cmd.PositionID))
	}
	if cmd.PositionID == "" || cmd.Owner == "" {
		return PositionOpened{}, apperror.Validation("position id and owner are required")
	}
	if !cmd.Collateral.IsPositive() || !cmd.Mint.IsPositive() {
		return PositionOpened{}, apperror.Validation("collateral and mint amount must be positive")
	}
	ok, ratio, err := v.MeetsMinimum(cmd.Collateral, cmd.Mint)
	if err != nil {
		return PositionOpened{}, apperror.Wrap(err, apperror.CodeValidationError, "value position")
	}
	if !ok {
		return PositionOpened{}, violation(apperror.CodeInsufficientCollateral,
			fmt.Sprintf("ratio %s below minimum %s for %s collateral",
				ratio, v.MintFloor(), v.Type))
	}
	return PositionOpened{
		Meta:            Meta{PositionID: cmd.PositionID, At: at},
		Owner:           cmd.Owner,
		Stablecoin:      cmd.Mint.Code(),
		CollateralAsset: cmd.Collateral.Code(),
		Collateral:      cmd.Collateral,
		Debt:            cmd.Mint,
		Ratio:           ratio,
	}, nil
}

// AddCollateral decides a top-up.
func AddCollateral(s State, amount asset.Amount, at time.Time) (CollateralAdded, error) {
	if err := mutable(s); err != nil {
		return CollateralAdded{}, err
	}
	if s.Status != StatusOpen && s.Status != StatusMarginCalled {
		return CollateralAdded{}, invalidState(s, "add collateral")
	}
	if amount.Code() != s.CollateralAsset {
		return CollateralAdded{}, apperror.Validation(
			fmt.Sprintf("position %s takes %s collateral, got %s", s.ID, s.CollateralAsset, amount.Code()))
	}
	if !amount.IsPositive() {
		return CollateralAdded{}, apperror.Validation("collateral amount must be positive")
	}
	return CollateralAdded{Meta: Meta{PositionID: s.ID, At: at}, Amount: amount}, nil
}

// Burn decides a repayment releasing release collateral. Releasing while debt
// remains requires the remainder to still meet the mint minimum under v.
func Burn(s State, amount, release asset.Amount, v risk.Valuation, at time.Time) (DebtBurned, error) {
	if err := mutable(s); err != nil {
		return DebtBurned{}, err
	}
	if s.Status == StatusLiquidating {
		return DebtBurned{}, invalidState(s, "burn")
	}
	if amount.Code() != s.Stablecoin || release.Code() != s.CollateralAsset {
		return DebtBurned{}, apperror.Validation(
			fmt.Sprintf("burn takes %s and releases %s", s.Stablecoin, s.CollateralAsset))
	}
	if amount.Decimal().IsNegative() || release.Decimal().IsNegative() || (amount.IsZero() && release.IsZero()) {
		return DebtBurned{}, apperror.Validation("burn needs a positive amount or release")
	}
	if s.Debt.LessThan(amount) {
		return DebtBurned{}, violation(apperror.CodeDebtExceeded,
			fmt.Sprintf("burn %s exceeds debt %s", amount, s.Debt))
	}
	if s.Collateral.LessThan(release) {
		return DebtBurned{}, violation(apperror.CodeInsufficientCollateral,
			fmt.Sprintf("release %s exceeds collateral %s", release, s.Collateral))
	}

	debt := s.Debt.MustSub(amount)
	collateral := s.Collateral.MustSub(release)
	if release.IsPositive() && debt.IsPositive() {
		ok, ratio, err := v.MeetsMinimum(collateral, debt)
		if err != nil {
			return DebtBurned{}, apperror.Wrap(err, apperror.CodeValidationError, "value position")
		}
		if !ok {
			return DebtBurned{}, violation(apperror.CodeInsufficientCollateral,
				fmt.Sprintf("release leaves ratio %s below minimum %s", ratio, v.MintFloor()))
		}
	}
	return DebtBurned{Meta: Meta{PositionID: s.ID, At: at}, Amount: amount, Released: release}, nil
}

// MarginCall decides a margin call from a fresh assessment.
func MarginCall(s State, a risk.Assessment, at time.Time) (MarginCallIssued, error) {
	if err := mutable(s); err != nil {
		return MarginCallIssued{}, err
	}
	if s.Status != StatusOpen {
		return MarginCallIssued{}, invalidState(s, "margin call")
	}
	if a.Health != risk.HealthMarginCall {
		return MarginCallIssued{}, violation(apperror.CodeInvalidState,
			fmt.Sprintf("position %s health is %s, not %s", s.ID, a.Health, risk.HealthMarginCall))
	}
	return MarginCallIssued{Meta: Meta{PositionID: s.ID, At: at}, Ratio: a.Ratio, Threshold: a.Threshold}, nil
}

// Liquidate decides a liquidation from an assessment and a won auction.
func Liquidate(s State, a risk.Assessment, r auction.Result, at time.Time) (PositionLiquidated, error) {
	if err := mutable(s); err != nil {
		return PositionLiquidated{}, err
	}
	if s.Status != StatusOpen && s.Status != StatusMarginCalled {
		return PositionLiquidated{}, invalidState(s, "liquidate")
	}
	if a.Health != risk.HealthLiquidation {
		return PositionLiquidated{}, violation(apperror.CodeInvalidState,
			fmt.Sprintf("position %s health is %s, not %s", s.ID, a.Health, risk.HealthLiquidation))
	}
	if !r.HasWinner || r.PositionID != s.ID {
		return PositionLiquidated{}, apperror.New(apperror.CodeAuctionFailed,
			apperror.WithContext(fmt.Sprintf("no winning auction for position %s", s.ID)))
	}
	return PositionLiquidated{Meta: Meta{PositionID: s.ID, At: at}, Ratio: a.Ratio, Result: r}, nil
}

// SettleLiquidation closes a liquidating position.
func SettleLiquidation(s State, at time.Time) (LiquidationSettled, error) {
	if err := mutable(s); err != nil {
		return LiquidationSettled{}, err
	}
	if s.Status != StatusLiquidating || s.Liquidation == nil {
		return LiquidationSettled{}, invalidState(s, "settle liquidation")
	}
	return LiquidationSettled{
		Meta:    Meta{PositionID: s.ID, At: at},
		Awarded: s.Liquidation.CollateralAwarded,
		Excess:  s.Liquidation.ExcessCollateral,
		Repaid:  s.Debt,
	}, nil
}

func mutable(s State) error {
	if !s.Exists() {
		return ErrPositionNotFound
	}
	if s.IsClosed() {
		return violation(apperror.CodePositionClosed, fmt.Sprintf("position %s is closed", s.ID))
	}
	return nil
}

func invalidState(s State, op string) error {
	return violation(apperror.CodeInvalidState, fmt.Sprintf("cannot %s position %s in status %s", op, s.ID, s.Status))
}
