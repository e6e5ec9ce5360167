package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// Health classifies a collateral ratio against a threshold.
type Health string

const (
	HealthHealthy     Health = "HEALTHY"
	HealthAtRisk      Health = "AT_RISK"
	HealthMarginCall  Health = "MARGIN_CALL"
	HealthLiquidation Health = "LIQUIDATION"
)

var (
	// ZeroDebtRatio stands in for an unbounded ratio when nothing is owed.
	ZeroDebtRatio = asset.RatioFromString("999")

	// insolvencyFloor applies regardless of the configured threshold.
	insolvencyFloor = asset.RatioFromString("1")
)

// Ratio returns collateralValue / debtValue, or ZeroDebtRatio when debt is zero.
func Ratio(collateralValue, debtValue decimal.Decimal) asset.Ratio {
	if debtValue.IsZero() {
		return ZeroDebtRatio
	}
	r, _ := asset.Quotient(collateralValue, debtValue)
	return r
}

// Classify applies the precedence LIQUIDATION > MARGIN_CALL > AT_RISK > HEALTHY.
func Classify(ratio asset.Ratio, t LiquidationThreshold) Health {
	switch {
	case ratio.LessThan(insolvencyFloor):
		return HealthLiquidation
	case ratio.LessThan(t.MarginCall()):
		return HealthMarginCall
	case ratio.LessThan(t.Safe()):
		return HealthAtRisk
	default:
		return HealthHealthy
	}
}

// Assessment is the risk view of one position at one price.
type Assessment struct {
	CollateralValue asset.Amount
	DebtValue       asset.Amount
	Ratio           asset.Ratio
	Health          Health
	Threshold       LiquidationThreshold
}

func (a Assessment) IsHealthy() bool { return a.Health == HealthHealthy }

// RequiresAction is true for MARGIN_CALL and LIQUIDATION.
func (a Assessment) RequiresAction() bool {
	return a.Health == HealthMarginCall || a.Health == HealthLiquidation
}

// RequiresLiquidation is the hard insolvency floor, ratio < 1.0.
func (a Assessment) RequiresLiquidation() bool {
	return a.Ratio.LessThan(insolvencyFloor)
}

func (a Assessment) RequiresMarginCall() bool {
	return a.RequiresAction() && !a.RequiresLiquidation()
}

// BelowLiquidationThreshold reports the configured early-warning level. It
// does not by itself make a position liquidatable.
func (a Assessment) BelowLiquidationThreshold() bool {
	return a.Ratio.LessThan(a.Threshold.Liquidation())
}

// Valuation carries the prices and rules a position is assessed with. Both
// prices must share a quote asset.
type Valuation struct {
	CollateralPrice asset.Price
	DebtPrice       asset.Price
	Threshold       LiquidationThreshold
	Type            CollateralType
}

// CollateralValue converts a collateral amount into the quote asset.
func (v Valuation) CollateralValue(collateral asset.Amount) (asset.Amount, error) {
	return v.CollateralPrice.Convert(collateral)
}

// DebtValue converts a debt amount into the quote asset.
func (v Valuation) DebtValue(debt asset.Amount) (asset.Amount, error) {
	return v.DebtPrice.Convert(debt)
}

// Assess values both legs and classifies the result.
func (v Valuation) Assess(collateral, debt asset.Amount) (Assessment, error) {
	if v.CollateralPrice.Quote() != v.DebtPrice.Quote() {
		return Assessment{}, fmt.Errorf("%w: collateral priced in %s, debt in %s",
			asset.ErrAssetMismatch, v.CollateralPrice.Quote(), v.DebtPrice.Quote())
	}
	cv, err := v.CollateralValue(collateral)
	if err != nil {
		return Assessment{}, err
	}
	dv, err := v.DebtValue(debt)
	if err != nil {
		return Assessment{}, err
	}
	ratio := Ratio(cv.Decimal(), dv.Decimal())
	return Assessment{
		CollateralValue: cv,
		DebtValue:       dv,
		Ratio:           ratio,
		Health:          Classify(ratio, v.Threshold),
		Threshold:       v.Threshold,
	}, nil
}

// MintFloor is the lowest ratio a mint or collateral release may leave: the
// collateral type's 1/MinLTV, raised to the threshold's margin-call level so
// a fresh position never opens margin-callable.
func (v Valuation) MintFloor() asset.Ratio {
	floor := MinimumCollateralRatio(v.Type)
	if mc := v.Threshold.MarginCall(); floor.LessThan(mc) {
		return mc
	}
	return floor
}

// MeetsMinimum reports whether collateral backs debt at MintFloor.
func (v Valuation) MeetsMinimum(collateral, debt asset.Amount) (bool, asset.Ratio, error) {
	a, err := v.Assess(collateral, debt)
	if err != nil {
		return false, asset.Ratio{}, err
	}
	return a.Ratio.GreaterThanOrEqual(v.MintFloor()), a.Ratio, nil
}
