// Package domain contains the pure collateral risk rules: collateral classes,
// liquidation thresholds, collateral ratios and position health.
package domain

import (
	"time"

	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// CollateralType is the closed set of collateral classes.
type CollateralType uint8

const (
	CollateralFiat CollateralType = iota
	CollateralStablecoin
	CollateralCrypto
	CollateralVolatile
)

type collateralParams struct {
	minLTV         asset.Ratio
	liquidationPct int64
	revaluation    time.Duration
}

var collateralTable = map[CollateralType]collateralParams{
	CollateralFiat:       {minLTV: asset.RatioFromString("0.90"), liquidationPct: 110, revaluation: 24 * time.Hour},
	CollateralStablecoin: {minLTV: asset.RatioFromString("0.85"), liquidationPct: 115, revaluation: time.Hour},
	CollateralCrypto:     {minLTV: asset.RatioFromString("0.66"), liquidationPct: 130, revaluation: 5 * time.Minute},
	CollateralVolatile:   {minLTV: asset.RatioFromString("0.50"), liquidationPct: 150, revaluation: time.Minute},
}

func (t CollateralType) String() string {
	switch t {
	case CollateralFiat:
		return "fiat"
	case CollateralStablecoin:
		return "stablecoin"
	case CollateralCrypto:
		return "crypto"
	case CollateralVolatile:
		return "volatile_crypto"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the known classes.
func (t CollateralType) Valid() bool {
	_, ok := collateralTable[t]
	return ok
}

// CollateralTypeFor maps an asset kind to its collateral class.
func CollateralTypeFor(kind asset.Kind) CollateralType {
	switch kind {
	case asset.KindFiat:
		return CollateralFiat
	case asset.KindStablecoin:
		return CollateralStablecoin
	case asset.KindCrypto:
		return CollateralCrypto
	default:
		return CollateralVolatile
	}
}

// RequiredLTV is the largest debt/collateral value ratio a mint may open at.
func RequiredLTV(t CollateralType) asset.Ratio {
	return params(t).minLTV
}

// MinimumCollateralRatio is 1/RequiredLTV, the collateral/debt floor for a mint.
func MinimumCollateralRatio(t CollateralType) asset.Ratio {
	r, err := asset.Quotient(asset.RatioFromString("1").Decimal(), RequiredLTV(t).Decimal())
	if err != nil {
		// every table entry has a non-zero LTV
		panic(err)
	}
	return r
}

// DefaultLiquidationThreshold returns the threshold for t.
func DefaultLiquidationThreshold(t CollateralType) LiquidationThreshold {
	return mustThreshold(params(t).liquidationPct)
}

// RevaluationInterval is how often positions backed by t should be re-priced.
func RevaluationInterval(t CollateralType) time.Duration {
	return params(t).revaluation
}

// Unknown values fall back to the strictest class.
func params(t CollateralType) collateralParams {
	p, ok := collateralTable[t]
	if !ok {
		return collateralTable[CollateralVolatile]
	}
	return p
}
