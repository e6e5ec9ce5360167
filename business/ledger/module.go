// Package ledger implements the account ledger bounded context.
package ledger

import (
	"context"

	"github.com/fd1az/stablecoin-engine/business/ledger/domain"
	ledgerDI "github.com/fd1az/stablecoin-engine/business/ledger/di"
	"github.com/fd1az/stablecoin-engine/business/ledger/infra/memory"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/di"
	"github.com/fd1az/stablecoin-engine/internal/logger"
	"github.com/fd1az/stablecoin-engine/internal/monolith"
)

// Module implements the ledger bounded context.
type Module struct{}

// RegisterServices registers the in-process ledger.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, ledgerDI.Ledger, func(sr di.ServiceRegistry) domain.Ledger {
		registry := sr.Get("assetRegistry").(*asset.Registry)
		log := sr.Get("logger").(logger.LoggerInterface)
		return memory.New(registry, log)
	})
	return nil
}

func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	ledgerDI.GetLedger(mono.Services())
	mono.Logger().Info(ctx, "ledger module started")
	return nil
}
