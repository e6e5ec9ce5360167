package asset

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// RatioScale is the number of fractional digits a Ratio keeps.
const RatioScale = 10

// Ratio is a dimensionless fixed-scale decimal (collateral ratios, LTVs,
// confidence scores). Values are truncated to RatioScale digits.
type Ratio struct {
	v decimal.Decimal
}

// NewRatio truncates d to RatioScale digits.
func NewRatio(d decimal.Decimal) Ratio {
	return Ratio{v: d.Truncate(RatioScale)}
}

// RatioFromString parses a ratio literal, panicking on malformed input.
func RatioFromString(s string) Ratio {
	return NewRatio(decimal.RequireFromString(s))
}

// RatioFromPercent converts 150 into 1.5.
func RatioFromPercent(pct decimal.Decimal) Ratio {
	return NewRatio(pct.Shift(-2))
}

// Quotient divides num by den at RatioScale, truncating. den must be non-zero.
func Quotient(num, den decimal.Decimal) (Ratio, error) {
	if den.IsZero() {
		return Ratio{}, ErrDivisionByZero
	}
	q, _ := num.QuoRem(den, RatioScale)
	return Ratio{v: q}, nil
}

func (r Ratio) Decimal() decimal.Decimal { return r.v }

// Percent returns the ratio times 100.
func (r Ratio) Percent() decimal.Decimal { return r.v.Shift(2) }

// Mul multiplies by another ratio, truncating.
func (r Ratio) Mul(o Ratio) Ratio { return NewRatio(r.v.Mul(o.v)) }

func (r Ratio) Cmp(o Ratio) int { return r.v.Cmp(o.v) }

func (r Ratio) LessThan(o Ratio) bool { return r.v.LessThan(o.v) }

func (r Ratio) GreaterThanOrEqual(o Ratio) bool { return r.v.GreaterThanOrEqual(o.v) }

func (r Ratio) Equal(o Ratio) bool { return r.v.Equal(o.v) }

func (r Ratio) IsZero() bool { return r.v.IsZero() }

func (r Ratio) String() string { return r.v.String() }

func (r Ratio) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.v.String())
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	*r = NewRatio(d)
	return nil
}
