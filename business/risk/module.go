// Package risk implements the collateral risk bounded context.
package risk

import (
	"context"

	"github.com/shopspring/decimal"

	oracleDI "github.com/fd1az/stablecoin-engine/business/oracle/di"
	"github.com/fd1az/stablecoin-engine/business/risk/app"
	riskDI "github.com/fd1az/stablecoin-engine/business/risk/di"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/config"
	"github.com/fd1az/stablecoin-engine/internal/di"
	"github.com/fd1az/stablecoin-engine/internal/logger"
	"github.com/fd1az/stablecoin-engine/internal/monolith"
)

// Module implements the risk bounded context.
type Module struct{}

// RegisterServices registers the Assessor, priced by the oracle aggregator.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, riskDI.Assessor, func(sr di.ServiceRegistry) *app.Assessor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		overrides := make(map[asset.Code]decimal.Decimal, len(cfg.Risk.Thresholds))
		for code := range cfg.Risk.Thresholds {
			if pct, ok := cfg.Risk.Threshold(code); ok {
				overrides[asset.Code(code)] = pct
			}
		}

		assessor, err := app.NewAssessor(oracleDI.GetAggregator(sr), registry,
			asset.Code(cfg.App.QuoteAsset), overrides, log)
		if err != nil {
			panic("failed to create risk assessor: " + err.Error())
		}
		return assessor
	})
	return nil
}

// Startup logs the effective thresholds.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	assessor := riskDI.GetAssessor(mono.Services())

	for _, a := range mono.AssetRegistry().All() {
		if a.Code() == assessor.QuoteAsset() {
			continue
		}
		t, err := assessor.Threshold(a.Code())
		if err != nil {
			return err
		}
		log.Debug(ctx, "liquidation threshold", "asset", a.Code(), "threshold", t.String())
	}

	log.Info(ctx, "risk module started", "quote_asset", assessor.QuoteAsset())
	return nil
}
