// Package oracle implements the price oracle bounded context: a set of
// independent sources combined into one aggregated price per pair.
package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/stablecoin-engine/business/oracle/app"
	oracleDI "github.com/fd1az/stablecoin-engine/business/oracle/di"
	"github.com/fd1az/stablecoin-engine/business/oracle/infra/binancefutures"
	"github.com/fd1az/stablecoin-engine/business/oracle/infra/chainlink"
	"github.com/fd1az/stablecoin-engine/business/oracle/infra/guard"
	"github.com/fd1az/stablecoin-engine/business/oracle/infra/rest"
	"github.com/fd1az/stablecoin-engine/business/oracle/infra/static"
	"github.com/fd1az/stablecoin-engine/business/oracle/infra/stream"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/config"
	"github.com/fd1az/stablecoin-engine/internal/di"
	"github.com/fd1az/stablecoin-engine/internal/logger"
	"github.com/fd1az/stablecoin-engine/internal/monolith"
)

// Module implements the oracle bounded context.
type Module struct{}

// RegisterServices registers the sources and the aggregator.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, oracleDI.Sources, func(sr di.ServiceRegistry) []app.Source {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		sources := make([]app.Source, 0, len(cfg.Oracle.Sources))
		for _, sc := range cfg.Oracle.Sources {
			src, err := buildSource(sr, cfg, sc, log)
			if err != nil {
				panic("failed to create price source " + sc.ID + ": " + err.Error())
			}
			sources = append(sources, src)
		}
		return sources
	})

	di.RegisterToken(c, oracleDI.Aggregator, func(sr di.ServiceRegistry) *app.Aggregator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		agg, err := app.NewAggregator(app.Config{
			MaxAge:        cfg.Oracle.MaxAge,
			SourceTimeout: cfg.Oracle.SourceTimeout,
		}, registry, log)
		if err != nil {
			panic("failed to create aggregator: " + err.Error())
		}

		sources := oracleDI.GetSources(sr)
		for i, src := range sources {
			if err := agg.Register(src, cfg.Oracle.Sources[i].MaxAge); err != nil {
				panic("failed to register price source: " + err.Error())
			}
		}
		return agg
	})

	return nil
}

// buildSource constructs one source by kind. Network sources without their
// own breaker are wrapped by the guard decorator.
func buildSource(sr di.ServiceRegistry, cfg *config.Config, sc config.SourceConfig, log logger.LoggerInterface) (app.Source, error) {
	switch sc.Kind {
	case config.SourceKindStatic:
		return static.Parse(sc.ID, sc.Priority, sc.Prices)

	case config.SourceKindHTTP:
		src, err := rest.New(rest.Config{
			ID:                sc.ID,
			Priority:          sc.Priority,
			BaseURL:           sc.URL,
			Timeout:           cfg.Oracle.SourceTimeout,
			RequestsPerMinute: sc.RequestsPerMinute,
			Symbols:           sc.Symbols,
		}, log)
		if err != nil {
			return nil, err
		}
		return guard.Wrap(src, cfg.Oracle.CacheTTL, log), nil

	case config.SourceKindStream:
		return stream.New(stream.Config{
			ID:       sc.ID,
			Priority: sc.Priority,
			BaseURL:  sc.URL,
			Symbols:  sc.Symbols,
		}, log)

	case config.SourceKindBinanceFutures:
		src := binancefutures.New(binancefutures.Config{
			ID:       sc.ID,
			Priority: sc.Priority,
			BaseURL:  sc.URL,
			Timeout:  cfg.Oracle.SourceTimeout,
			Symbols:  sc.Symbols,
		}, log)
		return guard.Wrap(src, cfg.Oracle.CacheTTL, log), nil

	case config.SourceKindChainlink:
		client, _ := sr.Get("ethClient").(*ethclient.Client)
		if client == nil {
			return nil, fmt.Errorf("chainlink source %s needs an ethereum client", sc.ID)
		}
		feeds := make(map[string]common.Address, len(sc.Feeds))
		for pair, addr := range sc.Feeds {
			feeds[pair] = common.HexToAddress(addr)
		}
		return chainlink.New(client, chainlink.Config{
			ID:       sc.ID,
			Priority: sc.Priority,
			Feeds:    feeds,
		}, log)
	}
	return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
}

// Startup connects streaming sources and registers the oracle health check.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	agg := oracleDI.GetAggregator(mono.Services())

	for _, src := range oracleDI.GetSources(mono.Services()) {
		connector, ok := src.(interface{ Connect(context.Context) error })
		if !ok {
			continue
		}
		go connectInBackground(ctx, log, src.ID(), connector)
	}

	if hs := mono.Health(); hs != nil {
		hs.RegisterCheck("oracle", func(ctx context.Context) (bool, string) {
			if err := agg.HealthCheck(ctx); err != nil {
				return false, err.Error()
			}
			return true, fmt.Sprintf("%d sources", len(agg.Sources()))
		})
	}

	log.Info(ctx, "oracle module started", "sources", len(agg.Sources()))
	return nil
}

// connectInBackground dials a streaming source without blocking startup.
func connectInBackground(ctx context.Context, log logger.LoggerInterface, id string, connector interface{ Connect(context.Context) error }) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := connector.Connect(connectCtx)
	cancel()
	if err == nil {
		log.Info(ctx, "price stream connected", "source", id)
		return
	}
	log.Warn(ctx, "price stream connection failed, will retry in background", "source", id, "error", err)

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
			if err := connector.Connect(ctx); err != nil {
				log.Warn(ctx, "price stream retry failed", "source", id, "error", err)
				continue
			}
			log.Info(ctx, "price stream connected", "source", id)
			return
		}
	}
}
