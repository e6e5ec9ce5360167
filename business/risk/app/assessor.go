// Package app contains the risk application service and its ports.
package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fd1az/stablecoin-engine/business/risk/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

// PriceFeed supplies the latest aggregated price of base in quote units.
type PriceFeed interface {
	Price(ctx context.Context, base, quote asset.Code) (asset.Price, error)
}

// Assessor builds valuations from live prices and configured thresholds.
type Assessor struct {
	prices     PriceFeed
	registry   *asset.Registry
	quote      asset.Code
	thresholds map[asset.Code]domain.LiquidationThreshold
	logger     logger.LoggerInterface
}

// NewAssessor creates an Assessor. overrides maps asset codes to a liquidation
// percentage that replaces the collateral-type default.
func NewAssessor(prices PriceFeed, registry *asset.Registry, quote asset.Code, overrides map[asset.Code]decimal.Decimal, log logger.LoggerInterface) (*Assessor, error) {
	if _, err := registry.Lookup(quote); err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithCause(err))
	}
	thresholds := make(map[asset.Code]domain.LiquidationThreshold, len(overrides))
	for code, pct := range overrides {
		t, err := domain.NewLiquidationThreshold(pct)
		if err != nil {
			return nil, fmt.Errorf("threshold for %s: %w", code, err)
		}
		thresholds[code.Normalize()] = t
	}
	return &Assessor{
		prices:     prices,
		registry:   registry,
		quote:      quote.Normalize(),
		thresholds: thresholds,
		logger:     log,
	}, nil
}

// QuoteAsset is the unit every value is expressed in.
func (a *Assessor) QuoteAsset() asset.Code { return a.quote }

// CollateralType resolves the collateral class of an asset.
func (a *Assessor) CollateralType(code asset.Code) (domain.CollateralType, error) {
	as, err := a.registry.Lookup(code)
	if err != nil {
		return 0, apperror.New(apperror.CodeValidationError, apperror.WithCause(err))
	}
	return domain.CollateralTypeFor(as.Kind()), nil
}

// Threshold returns the configured override or the collateral-type default.
func (a *Assessor) Threshold(code asset.Code) (domain.LiquidationThreshold, error) {
	if t, ok := a.thresholds[code.Normalize()]; ok {
		return t, nil
	}
	typ, err := a.CollateralType(code)
	if err != nil {
		return domain.LiquidationThreshold{}, err
	}
	return domain.DefaultLiquidationThreshold(typ), nil
}

// Valuation prices collateral and debt in the quote asset.
func (a *Assessor) Valuation(ctx context.Context, collateral, debt asset.Code) (domain.Valuation, error) {
	typ, err := a.CollateralType(collateral)
	if err != nil {
		return domain.Valuation{}, err
	}
	threshold, err := a.Threshold(collateral)
	if err != nil {
		return domain.Valuation{}, err
	}

	cp, err := a.prices.Price(ctx, collateral, a.quote)
	if err != nil {
		return domain.Valuation{}, err
	}
	dp, err := a.prices.Price(ctx, debt, a.quote)
	if err != nil {
		return domain.Valuation{}, err
	}

	return domain.Valuation{
		CollateralPrice: cp,
		DebtPrice:       dp,
		Threshold:       threshold,
		Type:            typ,
	}, nil
}

// Assess values and classifies one position.
func (a *Assessor) Assess(ctx context.Context, collateral, debt asset.Amount) (domain.Assessment, error) {
	v, err := a.Valuation(ctx, collateral.Code(), debt.Code())
	if err != nil {
		return domain.Assessment{}, err
	}
	assessment, err := v.Assess(collateral, debt)
	if err != nil {
		return domain.Assessment{}, apperror.New(apperror.CodeInvalidInput, apperror.WithCause(err))
	}
	if assessment.RequiresAction() {
		a.logger.Debug(ctx, "position requires action",
			"collateral", collateral.String(),
			"debt", debt.String(),
			"ratio", assessment.Ratio.String(),
			"health", string(assessment.Health),
		)
	}
	return assessment, nil
}
