// Package auction implements the liquidation auction bounded context.
package auction

import (
	"context"

	"github.com/fd1az/stablecoin-engine/business/auction/app"
	auctionDI "github.com/fd1az/stablecoin-engine/business/auction/di"
	"github.com/fd1az/stablecoin-engine/business/auction/infra/memory"
	ledgerDI "github.com/fd1az/stablecoin-engine/business/ledger/di"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/config"
	"github.com/fd1az/stablecoin-engine/internal/di"
	"github.com/fd1az/stablecoin-engine/internal/logger"
	"github.com/fd1az/stablecoin-engine/internal/monolith"
)

// Module implements the auction bounded context.
type Module struct{}

// RegisterServices registers the bid book and the auctioneer.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, auctionDI.BidBook, func(sr di.ServiceRegistry) *memory.BidBook {
		return memory.NewBidBook()
	})

	di.RegisterToken(c, auctionDI.Auctioneer, func(sr di.ServiceRegistry) *app.Auctioneer {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		a, err := app.NewAuctioneer(app.Config{
			Bonus:    asset.NewRatio(cfg.Auction.BonusRatio()),
			Cooldown: cfg.Auction.Cooldown,
		}, auctionDI.GetBidBook(sr), ledgerDI.GetLedger(sr), log)
		if err != nil {
			panic("failed to create auctioneer: " + err.Error())
		}
		return a
	})
	return nil
}

func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	a := auctionDI.GetAuctioneer(mono.Services())
	mono.Logger().Info(ctx, "auction module started", "bonus", a.Bonus().String())
	return nil
}
