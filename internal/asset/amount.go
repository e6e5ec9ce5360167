package asset

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrNilAsset        = errors.New("asset: nil asset")
	ErrUnknownAsset    = errors.New("asset: unknown asset")
	ErrNegativeAmount  = errors.New("asset: negative amount")
	ErrAssetMismatch   = errors.New("asset: cannot operate on different assets")
	ErrNegativeResult  = errors.New("asset: operation would result in negative amount")
	ErrTooManyDecimals = errors.New("asset: too many decimal places for asset")
	ErrDivisionByZero  = errors.New("asset: division by zero")
)

// Amount is an immutable, non-negative quantity of one asset held at that
// asset's precision. It carries its code and precision so it serializes
// without a registry lookup.
type Amount struct {
	value    decimal.Decimal
	code     Code
	decimals uint8
}

// NewAmount creates an Amount. The value must be non-negative and fit the
// asset's precision exactly.
func NewAmount(a *Asset, value decimal.Decimal) (Amount, error) {
	if a == nil {
		return Amount{}, ErrNilAsset
	}
	return newAmount(a.Code(), a.Decimals(), value)
}

func newAmount(code Code, decimals uint8, value decimal.Decimal) (Amount, error) {
	if value.IsNegative() {
		return Amount{}, ErrNegativeAmount
	}
	if !value.Equal(value.Truncate(int32(decimals))) {
		return Amount{}, fmt.Errorf("%w: %s has %d decimals, got %s",
			ErrTooManyDecimals, code, decimals, value.String())
	}
	return Amount{value: value, code: code, decimals: decimals}, nil
}

// MustNewAmount creates an Amount, panics on error.
func MustNewAmount(a *Asset, value decimal.Decimal) Amount {
	amt, err := NewAmount(a, value)
	if err != nil {
		panic(err)
	}
	return amt
}

// ParseAmount parses a decimal string such as "1500.25".
func ParseAmount(a *Asset, s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("asset: parse %q: %w", s, err)
	}
	return NewAmount(a, d)
}

// MustParse is ParseAmount for literals in wiring code and tests.
func MustParse(a *Asset, s string) Amount {
	amt, err := ParseAmount(a, s)
	if err != nil {
		panic(err)
	}
	return amt
}

// Zero creates a zero Amount for the given asset.
func Zero(a *Asset) Amount {
	return Amount{value: decimal.Zero, code: a.Code(), decimals: a.Decimals()}
}

// FromDecimalTruncated rounds value down to the asset precision. Use it where a
// computed value (price conversion, bonus) must land on a representable amount.
func FromDecimalTruncated(a *Asset, value decimal.Decimal) (Amount, error) {
	if a == nil {
		return Amount{}, ErrNilAsset
	}
	return newAmount(a.Code(), a.Decimals(), value.Truncate(int32(a.Decimals())))
}

func (a Amount) Code() Code { return a.code }

func (a Amount) Decimals() uint8 { return a.decimals }

// Decimal returns the value for boundary use (persistence, display, pricing).
func (a Amount) Decimal() decimal.Decimal { return a.value }

func (a Amount) IsZero() bool { return a.value.IsZero() }

func (a Amount) IsPositive() bool { return a.value.IsPositive() }

// -----------------------------------------------------------------------------
// Arithmetic Operations (same asset only)
// -----------------------------------------------------------------------------

// Add adds two amounts of the same asset.
func (a Amount) Add(b Amount) (Amount, error) {
	if err := a.checkSameAsset(b); err != nil {
		return Amount{}, err
	}
	return Amount{value: a.value.Add(b.value), code: a.code, decimals: a.decimals}, nil
}

// MustAdd adds two amounts, panics on error.
func (a Amount) MustAdd(b Amount) Amount {
	result, err := a.Add(b)
	if err != nil {
		panic(err)
	}
	return result
}

// Sub subtracts b from a. The result may not go negative.
func (a Amount) Sub(b Amount) (Amount, error) {
	if err := a.checkSameAsset(b); err != nil {
		return Amount{}, err
	}
	if a.value.LessThan(b.value) {
		return Amount{}, ErrNegativeResult
	}
	return Amount{value: a.value.Sub(b.value), code: a.code, decimals: a.decimals}, nil
}

// MustSub subtracts, panics on error.
func (a Amount) MustSub(b Amount) Amount {
	result, err := a.Sub(b)
	if err != nil {
		panic(err)
	}
	return result
}

// MulRatio scales the amount by r, truncating to the asset precision.
func (a Amount) MulRatio(r Ratio) Amount {
	v := a.value.Mul(r.Decimal()).Truncate(int32(a.decimals))
	if v.IsNegative() {
		v = decimal.Zero
	}
	return Amount{value: v, code: a.code, decimals: a.decimals}
}

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) (Amount, error) {
	if err := a.checkSameAsset(b); err != nil {
		return Amount{}, err
	}
	if b.value.LessThan(a.value) {
		return b, nil
	}
	return a, nil
}

// -----------------------------------------------------------------------------
// Comparison
// -----------------------------------------------------------------------------

// Cmp compares two amounts of the same asset.
func (a Amount) Cmp(b Amount) (int, error) {
	if err := a.checkSameAsset(b); err != nil {
		return 0, err
	}
	return a.value.Cmp(b.value), nil
}

// GreaterThanOrEqual panics on asset mismatch; use Cmp when assets may differ.
func (a Amount) GreaterThanOrEqual(b Amount) bool {
	c, err := a.Cmp(b)
	if err != nil {
		panic(err)
	}
	return c >= 0
}

func (a Amount) LessThan(b Amount) bool {
	c, err := a.Cmp(b)
	if err != nil {
		panic(err)
	}
	return c < 0
}

func (a Amount) Equal(b Amount) bool {
	return a.code == b.code && a.value.Equal(b.value)
}

func (a Amount) checkSameAsset(b Amount) error {
	if a.code != b.code {
		return fmt.Errorf("%w: %s vs %s", ErrAssetMismatch, a.code, b.code)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Formatting and serialization
// -----------------------------------------------------------------------------

// String returns e.g. "1500.25 USDS".
func (a Amount) String() string {
	return a.value.String() + " " + string(a.code)
}

type amountJSON struct {
	Asset    Code   `json:"asset"`
	Value    string `json:"value"`
	Decimals uint8  `json:"decimals"`
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(amountJSON{Asset: a.code, Value: a.value.String(), Decimals: a.decimals})
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw amountJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := decimal.NewFromString(raw.Value)
	if err != nil {
		return fmt.Errorf("asset: amount value %q: %w", raw.Value, err)
	}
	amt, err := newAmount(raw.Asset, raw.Decimals, v)
	if err != nil {
		return err
	}
	*a = amt
	return nil
}
