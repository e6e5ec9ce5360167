// Package funding implements the deposit and withdrawal bounded context.
package funding

import (
	"context"

	"github.com/fd1az/stablecoin-engine/business/funding/app"
	fundingDI "github.com/fd1az/stablecoin-engine/business/funding/di"
	"github.com/fd1az/stablecoin-engine/business/funding/infra/bank"
	"github.com/fd1az/stablecoin-engine/internal/config"
	"github.com/fd1az/stablecoin-engine/internal/di"
	"github.com/fd1az/stablecoin-engine/internal/eventstore"
	"github.com/fd1az/stablecoin-engine/internal/logger"
	"github.com/fd1az/stablecoin-engine/internal/monolith"
)

// Module implements the funding bounded context.
type Module struct{}

// RegisterServices registers the funding service and the bank rail. Without
// a bank URL the simulated bank is used.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, fundingDI.Service, func(sr di.ServiceRegistry) *app.Service {
		log := sr.Get("logger").(logger.LoggerInterface)
		store := sr.Get("eventStore").(eventstore.Store)
		publisher := sr.Get("publisher").(eventstore.Publisher)
		return app.NewService(store, publisher, log)
	})

	di.RegisterToken(c, fundingDI.Bank, func(sr di.ServiceRegistry) app.Bank {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		if cfg.Bank.URL == "" {
			return bank.NewSimulated()
		}
		b, err := bank.NewHTTP(bank.Config{
			BaseURL: cfg.Bank.URL,
			APIKey:  cfg.Bank.APIKey,
			Timeout: cfg.Bank.Timeout,
		}, log)
		if err != nil {
			panic("failed to create bank client: " + err.Error())
		}
		return b
	})
	return nil
}

func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	b := fundingDI.GetBank(mono.Services())

	if hb, ok := b.(*bank.HTTPBank); ok && mono.Health() != nil {
		mono.Health().RegisterCheck("bank", func(context.Context) (bool, string) {
			if !hb.Healthy() {
				return false, "circuit open"
			}
			return true, "ok"
		})
	}

	_, simulated := b.(*bank.Simulated)
	mono.Logger().Info(ctx, "funding module started", "simulated_bank", simulated)
	return nil
}
