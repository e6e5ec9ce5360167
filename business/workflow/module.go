// Package workflow implements the saga orchestration bounded context.
package workflow

import (
	"context"

	auctionDI "github.com/fd1az/stablecoin-engine/business/auction/di"
	fundingDI "github.com/fd1az/stablecoin-engine/business/funding/di"
	ledgerDI "github.com/fd1az/stablecoin-engine/business/ledger/di"
	positionDI "github.com/fd1az/stablecoin-engine/business/position/di"
	riskDI "github.com/fd1az/stablecoin-engine/business/risk/di"
	"github.com/fd1az/stablecoin-engine/business/workflow/app"
	workflowDI "github.com/fd1az/stablecoin-engine/business/workflow/di"
	"github.com/fd1az/stablecoin-engine/business/workflow/infra/archive"
	"github.com/fd1az/stablecoin-engine/internal/config"
	"github.com/fd1az/stablecoin-engine/internal/di"
	"github.com/fd1az/stablecoin-engine/internal/logger"
	"github.com/fd1az/stablecoin-engine/internal/monolith"
	"github.com/fd1az/stablecoin-engine/internal/retry"
)

// Module implements the workflow bounded context.
type Module struct{}

// RegisterServices registers the orchestrator, its archive and worker pool,
// the saga builders, the command surface and the liquidation sweeper.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, workflowDI.Archive, func(sr di.ServiceRegistry) app.Archive {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		if cfg.Archive.Driver != "s3" {
			return archive.NewMemory()
		}
		a, err := archive.NewS3(context.Background(), archive.S3Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			Prefix:          cfg.Archive.Prefix,
			PathStyle:       cfg.Archive.PathStyle,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		}, log)
		if err != nil {
			panic("failed to create saga archive: " + err.Error())
		}
		return a
	})

	di.RegisterToken(c, workflowDI.Orchestrator, func(sr di.ServiceRegistry) *app.Orchestrator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		o, err := app.NewOrchestrator(app.OrchestratorConfig{
			Retry: retry.Policy{
				MaxAttempts:     cfg.Workflow.RetryAttempts,
				InitialInterval: cfg.Workflow.RetryInitial,
				MaxInterval:     cfg.Workflow.RetryMax,
				Multiplier:      2,
				AttemptTimeout:  cfg.Workflow.StepTimeout,
			},
			CompensationTimeout: 10 * cfg.Workflow.StepTimeout,
		}, workflowDI.GetArchive(sr), log)
		if err != nil {
			panic("failed to create orchestrator: " + err.Error())
		}
		return o
	})

	di.RegisterToken(c, workflowDI.Sagas, func(sr di.ServiceRegistry) *app.Sagas {
		return app.NewSagas(app.SagaDeps{
			Ledger:    ledgerDI.GetLedger(sr),
			Positions: positionDI.GetService(sr),
			Valuer:    riskDI.GetAssessor(sr),
			Auctions:  auctionDI.GetAuctioneer(sr),
			Funding:   fundingDI.GetService(sr),
			Bank:      fundingDI.GetBank(sr),
		}, workflowDI.GetOrchestrator(sr))
	})

	di.RegisterToken(c, workflowDI.Pool, func(sr di.ServiceRegistry) *app.Pool {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewPool(workflowDI.GetOrchestrator(sr), cfg.Workflow.Workers, cfg.Workflow.QueueSize, log)
	})

	di.RegisterToken(c, workflowDI.Commands, func(sr di.ServiceRegistry) *app.Commands {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewCommands(
			workflowDI.GetPool(sr),
			workflowDI.GetSagas(sr),
			positionDI.GetService(sr),
			fundingDI.GetService(sr),
			cfg.Workflow.CommandAttempts,
			log,
		)
	})

	di.RegisterToken(c, workflowDI.Sweeper, func(sr di.ServiceRegistry) *app.Sweeper {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		s, err := app.NewSweeper(app.SweeperConfig{
			Interval: cfg.Auction.SweepInterval,
			Workers:  cfg.Workflow.Workers,
		}, positionDI.GetService(sr), riskDI.GetAssessor(sr), auctionDI.GetAuctioneer(sr), workflowDI.GetCommands(sr), log)
		if err != nil {
			panic("failed to create sweeper: " + err.Error())
		}
		return s
	})
	return nil
}

// Startup starts the saga workers. The sweeper is started by the caller once
// every module is up.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	workflowDI.GetPool(mono.Services()).Start()

	cfg := mono.Config()
	mono.Logger().Info(ctx, "workflow module started",
		"workers", cfg.Workflow.Workers,
		"queue", cfg.Workflow.QueueSize,
		"step_timeout", cfg.Workflow.StepTimeout.String(),
		"archive", archiveDriver(cfg))
	return nil
}

func archiveDriver(cfg *config.Config) string {
	if cfg.Archive.Driver == "s3" {
		return "s3"
	}
	return "memory"
}
