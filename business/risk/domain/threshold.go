package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

var (
	minThresholdPct = decimal.NewFromInt(100)
	maxThresholdPct = decimal.NewFromInt(1000)

	marginCallMultiplier = asset.RatioFromString("1.2")
	safeMultiplier       = asset.RatioFromString("1.5")
)

// LiquidationThreshold is the ratio schedule a position is classified against.
// MarginCall and Safe are fixed multiples of Liquidation.
type LiquidationThreshold struct {
	liquidation asset.Ratio
	marginCall  asset.Ratio
	safe        asset.Ratio
}

// NewLiquidationThreshold builds a threshold from a percentage in [100, 1000].
func NewLiquidationThreshold(pct decimal.Decimal) (LiquidationThreshold, error) {
	if pct.LessThan(minThresholdPct) || pct.GreaterThan(maxThresholdPct) {
		return LiquidationThreshold{}, apperror.New(apperror.CodeInvalidThreshold,
			apperror.WithContext(pct.String()+"%"))
	}
	liq := asset.RatioFromPercent(pct)
	return LiquidationThreshold{
		liquidation: liq,
		marginCall:  liq.Mul(marginCallMultiplier),
		safe:        liq.Mul(safeMultiplier),
	}, nil
}

func mustThreshold(pct int64) LiquidationThreshold {
	t, err := NewLiquidationThreshold(decimal.NewFromInt(pct))
	if err != nil {
		panic(err)
	}
	return t
}

func (t LiquidationThreshold) Liquidation() asset.Ratio { return t.liquidation }

func (t LiquidationThreshold) MarginCall() asset.Ratio { return t.marginCall }

func (t LiquidationThreshold) Safe() asset.Ratio { return t.safe }

// Percent returns the liquidation level as a percentage (150 for 1.5).
func (t LiquidationThreshold) Percent() decimal.Decimal { return t.liquidation.Percent() }

func (t LiquidationThreshold) IsZero() bool { return t.liquidation.IsZero() }

func (t LiquidationThreshold) String() string {
	return t.Percent().String() + "%"
}

func (t LiquidationThreshold) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Percent().String())
}

func (t *LiquidationThreshold) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	pct, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	parsed, err := NewLiquidationThreshold(pct)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
