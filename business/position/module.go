// Package position implements the event-sourced position bounded context.
package position

import (
	"context"

	"github.com/fd1az/stablecoin-engine/business/position/app"
	positionDI "github.com/fd1az/stablecoin-engine/business/position/di"
	riskDI "github.com/fd1az/stablecoin-engine/business/risk/di"
	"github.com/fd1az/stablecoin-engine/internal/config"
	"github.com/fd1az/stablecoin-engine/internal/di"
	"github.com/fd1az/stablecoin-engine/internal/eventstore"
	"github.com/fd1az/stablecoin-engine/internal/logger"
	"github.com/fd1az/stablecoin-engine/internal/monolith"
)

// Module implements the position bounded context.
type Module struct{}

// RegisterServices registers the repository over the shared event store and
// the command service, valued by the risk assessor.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, positionDI.Repository, func(sr di.ServiceRegistry) *app.Repository {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		store := sr.Get("eventStore").(eventstore.Store)
		snapshots := sr.Get("snapshots").(eventstore.SnapshotStore)
		publisher := sr.Get("publisher").(eventstore.Publisher)
		return app.NewRepository(store, snapshots, publisher, int64(cfg.EventStore.SnapshotEvery), log)
	})

	di.RegisterToken(c, positionDI.Service, func(sr di.ServiceRegistry) *app.Service {
		log := sr.Get("logger").(logger.LoggerInterface)
		svc, err := app.NewService(positionDI.GetRepository(sr), riskDI.GetAssessor(sr), log)
		if err != nil {
			panic("failed to create position service: " + err.Error())
		}
		return svc
	})
	return nil
}

// Startup replays every stream once so a corrupt log fails fast.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	svc := positionDI.GetService(mono.Services())

	ids, err := svc.IDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := svc.Get(ctx, id); err != nil {
			return err
		}
	}

	mono.Logger().Info(ctx, "position module started", "positions", len(ids))
	return nil
}
