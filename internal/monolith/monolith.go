// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/config"
	"github.com/fd1az/stablecoin-engine/internal/di"
	"github.com/fd1az/stablecoin-engine/internal/eventstore"
	"github.com/fd1az/stablecoin-engine/internal/health"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	EthClient() *ethclient.Client
	AssetRegistry() *asset.Registry
	Health() *health.Server
	Events() *eventstore.Bus
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// app implements the Monolith interface.
type app struct {
	config        *config.Config
	logger        logger.LoggerInterface
	ethClient     *ethclient.Client
	assetRegistry *asset.Registry
	health        *health.Server
	store         eventstore.Store
	bus           *eventstore.Bus
	closers       []func() error
	container     di.Container
}

// New creates a new Monolith instance. hs may be nil when no ops server runs.
func New(ctx context.Context, cfg *config.Config, log logger.LoggerInterface, hs *health.Server) (*app, error) {
	a := &app{
		config:        cfg,
		logger:        log,
		assetRegistry: asset.DefaultRegistry(),
		health:        hs,
		bus:           eventstore.NewBus(),
		container:     di.NewContainer(),
	}

	// On-chain oracle sources are optional
	if cfg.Ethereum.HTTPURL != "" {
		ethClient, err := ethclient.DialContext(ctx, cfg.Ethereum.HTTPURL)
		if err != nil {
			return nil, fmt.Errorf("dial ethereum: %w", err)
		}
		a.ethClient = ethClient
	}

	if err := a.openEventStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	snapshots, err := a.openSnapshots(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	publisher, err := a.openPublisher()
	if err != nil {
		a.Close()
		return nil, err
	}

	// Register global services
	a.container.Register("config", cfg)
	a.container.Register("logger", log)
	a.container.Register("ethClient", a.ethClient)
	a.container.Register("assetRegistry", a.assetRegistry)
	a.container.Register("eventStore", a.store)
	a.container.Register("snapshots", snapshots)
	a.container.Register("publisher", publisher)

	return a, nil
}

func (a *app) openEventStore(ctx context.Context) error {
	switch a.config.EventStore.Driver {
	case config.DriverSQLite:
		s, err := eventstore.NewSQLiteStore(ctx, a.config.EventStore.DSN, a.logger)
		if err != nil {
			return err
		}
		a.store = s
		a.check("eventstore", s.Ping)
	case config.DriverPostgres:
		s, err := eventstore.NewPostgresStore(ctx, a.config.EventStore.DSN, a.logger)
		if err != nil {
			return err
		}
		a.store = s
		a.check("eventstore", s.Ping)
	default:
		a.store = eventstore.NewMemoryStore()
	}
	a.closers = append(a.closers, a.store.Close)
	a.logger.Info(ctx, "event store opened", "driver", a.config.EventStore.Driver)
	return nil
}

func (a *app) openSnapshots(ctx context.Context) (eventstore.SnapshotStore, error) {
	if !a.config.Redis.Enabled {
		return eventstore.NewMemorySnapshots(), nil
	}
	r, err := eventstore.NewRedisSnapshots(a.config.Redis.URL, a.config.Redis.SnapshotTTL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, r.Close)
	a.check("redis", r.Ping)
	a.logger.Info(ctx, "redis snapshots enabled", "ttl", a.config.Redis.SnapshotTTL)
	return r, nil
}

// openPublisher returns the in-process bus, fanned out to Kafka when enabled.
func (a *app) openPublisher() (eventstore.Publisher, error) {
	if !a.config.Kafka.Enabled {
		return a.bus, nil
	}
	k, err := eventstore.NewKafkaPublisher(a.config.Kafka.Brokers, a.config.Kafka.Topic, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, k.Close)
	return eventstore.Fanout{a.bus, k}, nil
}

func (a *app) check(name string, ping func(context.Context) error) {
	if a.health == nil {
		return
	}
	a.health.RegisterCheck(name, func(ctx context.Context) (bool, string) {
		if err := ping(ctx); err != nil {
			return false, err.Error()
		}
		return true, "ok"
	})
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) EthClient() *ethclient.Client {
	return a.ethClient
}

func (a *app) AssetRegistry() *asset.Registry {
	return a.assetRegistry
}

func (a *app) Health() *health.Server {
	return a.health
}

func (a *app) Events() *eventstore.Bus {
	return a.bus
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all resources.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if a.ethClient != nil {
		a.ethClient.Close()
	}
	return errors.Join(errs...)
}
