// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Log        LogConfig        `mapstructure:"log"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Auction    AuctionConfig    `mapstructure:"auction"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Bank       BankConfig       `mapstructure:"bank"`
	EventStore EventStoreConfig `mapstructure:"eventstore"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Health     HealthConfig     `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	// QuoteAsset is the unit every collateral and debt value is priced in.
	QuoteAsset string `mapstructure:"quote_asset"`
}

// LogConfig configures the logrus backend and optional file rotation.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// Source kinds understood by the oracle module.
const (
	SourceKindStatic         = "static"
	SourceKindHTTP           = "http"
	SourceKindStream         = "stream"
	SourceKindChainlink      = "chainlink"
	SourceKindBinanceFutures = "binance_futures"
)

// OracleConfig configures price aggregation.
type OracleConfig struct {
	// MaxAge is the default staleness bound for sources without their own.
	MaxAge        time.Duration  `mapstructure:"max_age"`
	SourceTimeout time.Duration  `mapstructure:"source_timeout"`
	CacheTTL      time.Duration  `mapstructure:"cache_ttl"`
	Sources       []SourceConfig `mapstructure:"sources"`
}

// SourceConfig describes one price source. Pair keys use "BASE/QUOTE".
type SourceConfig struct {
	ID       string        `mapstructure:"id"`
	Kind     string        `mapstructure:"kind"`
	Priority int           `mapstructure:"priority"`
	MaxAge   time.Duration `mapstructure:"max_age"`
	URL      string        `mapstructure:"url"`
	// RequestsPerMinute rate-limits http sources. Zero disables limiting.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	// Symbols maps a pair to the venue symbol (http, stream, binance_futures).
	Symbols map[string]string `mapstructure:"symbols"`
	// Feeds maps a pair to an aggregator contract address (chainlink).
	Feeds map[string]string `mapstructure:"feeds"`
	// Prices maps a pair to a fixed rate (static).
	Prices map[string]string `mapstructure:"prices"`
}

// Symbol returns the venue symbol for pair. Viper lower-cases map keys, so
// lookups are case-insensitive.
func (s SourceConfig) Symbol(pair string) (string, bool) {
	return lookupFold(s.Symbols, pair)
}

// Feed returns the aggregator contract for pair.
func (s SourceConfig) Feed(pair string) (string, bool) {
	return lookupFold(s.Feeds, pair)
}

// Price returns the fixed rate for pair.
func (s SourceConfig) Price(pair string) (string, bool) {
	return lookupFold(s.Prices, pair)
}

// Pairs lists every pair the source is configured for, upper-cased.
func (s SourceConfig) Pairs() []string {
	var m map[string]string
	switch s.Kind {
	case SourceKindStatic:
		m = s.Prices
	case SourceKindChainlink:
		m = s.Feeds
	default:
		m = s.Symbols
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, strings.ToUpper(k))
	}
	return out
}

func lookupFold(m map[string]string, key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// EthereumConfig holds the node used by on-chain sources.
type EthereumConfig struct {
	HTTPURL string `mapstructure:"http_url"`
}

// RiskConfig configures liquidation thresholds.
type RiskConfig struct {
	// Thresholds overrides the collateral-type default per asset code, in percent.
	Thresholds map[string]string `mapstructure:"thresholds"`
}

// Threshold returns the configured percentage override for an asset code.
func (c RiskConfig) Threshold(code string) (decimal.Decimal, bool) {
	v, ok := lookupFold(c.Thresholds, code)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// AuctionConfig configures liquidation auctions and the sweeper.
type AuctionConfig struct {
	BonusPct      string        `mapstructure:"bonus_pct"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	BidWindow     time.Duration `mapstructure:"bid_window"`
}

// BonusRatio returns the bonus as a fraction (5 -> 0.05).
func (c AuctionConfig) BonusRatio() decimal.Decimal {
	d, err := decimal.NewFromString(c.BonusPct)
	if err != nil {
		return decimal.Zero
	}
	return d.Shift(-2)
}

// WorkflowConfig configures the saga orchestrator.
type WorkflowConfig struct {
	StepTimeout     time.Duration `mapstructure:"step_timeout"`
	RetryAttempts   uint          `mapstructure:"retry_attempts"`
	RetryInitial    time.Duration `mapstructure:"retry_initial"`
	RetryMax        time.Duration `mapstructure:"retry_max"`
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	CommandAttempts int           `mapstructure:"command_attempts"`
}

// BankConfig configures the external bank transfer API.
type BankConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Event store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// EventStoreConfig selects and configures the event log.
type EventStoreConfig struct {
	Driver        string `mapstructure:"driver"`
	DSN           string `mapstructure:"dsn"`
	SnapshotEvery int    `mapstructure:"snapshot_every"`
}

// RedisConfig configures the snapshot cache.
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	URL         string        `mapstructure:"url"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

// KafkaConfig configures the outbound domain event stream.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ArchiveConfig configures where terminal sagas are archived.
type ArchiveConfig struct {
	Driver          string `mapstructure:"driver"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Prefix          string `mapstructure:"prefix"`
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ServiceName   string `mapstructure:"service_name"`
	TraceProvider string `mapstructure:"trace_provider"`
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
}

// HealthConfig configures the ops HTTP server.
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("STBL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.environment", "STBL_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("log.level", "STBL_LOG_LEVEL", "LOG_LEVEL")

	v.BindEnv("ethereum.http_url", "STBL_ETH_HTTP_URL", "ETH_HTTP_URL")

	v.BindEnv("eventstore.driver", "STBL_EVENTSTORE_DRIVER")
	v.BindEnv("eventstore.dsn", "STBL_EVENTSTORE_DSN", "DATABASE_URL")
	v.BindEnv("redis.url", "STBL_REDIS_URL", "REDIS_URL")

	v.BindEnv("bank.url", "STBL_BANK_URL")
	v.BindEnv("bank.api_key", "STBL_BANK_API_KEY")

	v.BindEnv("archive.access_key_id", "STBL_ARCHIVE_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID")
	v.BindEnv("archive.secret_access_key", "STBL_ARCHIVE_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY")

	v.BindEnv("telemetry.enabled", "STBL_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "STBL_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "STBL_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stablecoin-engine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.quote_asset", "USD")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("log.max_backups", 5)

	v.SetDefault("oracle.max_age", "300s")
	v.SetDefault("oracle.source_timeout", "2s")
	v.SetDefault("oracle.cache_ttl", "5s")

	v.SetDefault("auction.bonus_pct", "5")
	v.SetDefault("auction.cooldown", "10m")
	v.SetDefault("auction.sweep_interval", "30s")
	v.SetDefault("auction.bid_window", "5s")

	v.SetDefault("workflow.step_timeout", "10s")
	v.SetDefault("workflow.retry_attempts", 3)
	v.SetDefault("workflow.retry_initial", "200ms")
	v.SetDefault("workflow.retry_max", "5s")
	v.SetDefault("workflow.workers", 8)
	v.SetDefault("workflow.queue_size", 256)
	v.SetDefault("workflow.command_attempts", 3)

	v.SetDefault("bank.timeout", "15s")

	v.SetDefault("eventstore.driver", DriverMemory)
	v.SetDefault("eventstore.snapshot_every", 50)

	v.SetDefault("redis.snapshot_ttl", "24h")

	v.SetDefault("kafka.topic", "stablecoin.events")

	v.SetDefault("archive.driver", DriverMemory)
	v.SetDefault("archive.prefix", "sagas")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "stablecoin-engine")
	v.SetDefault("telemetry.trace_provider", "console")

	v.SetDefault("health.port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Oracle.Sources) == 0 {
		return fmt.Errorf("oracle.sources cannot be empty")
	}

	seen := make(map[string]bool, len(c.Oracle.Sources))
	for i, s := range c.Oracle.Sources {
		if s.ID == "" {
			return fmt.Errorf("oracle.sources[%d].id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("oracle.sources[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true

		if s.Priority < 1 {
			return fmt.Errorf("oracle.sources[%d].priority must be >= 1", i)
		}

		switch s.Kind {
		case SourceKindStatic:
			if len(s.Prices) == 0 {
				return fmt.Errorf("oracle.sources[%d]: static source needs prices", i)
			}
		case SourceKindHTTP, SourceKindStream:
			if s.URL == "" {
				return fmt.Errorf("oracle.sources[%d].url is required for %s", i, s.Kind)
			}
		case SourceKindChainlink:
			if c.Ethereum.HTTPURL == "" {
				return fmt.Errorf("ethereum.http_url is required for chainlink sources")
			}
			for pair, addr := range s.Feeds {
				if !common.IsHexAddress(addr) {
					return fmt.Errorf("oracle.sources[%d].feeds[%s]: invalid address %s", i, pair, addr)
				}
			}
		case SourceKindBinanceFutures:
		default:
			return fmt.Errorf("oracle.sources[%d]: unknown kind %q", i, s.Kind)
		}
	}

	for code, pct := range c.Risk.Thresholds {
		if _, err := decimal.NewFromString(pct); err != nil {
			return fmt.Errorf("risk.thresholds[%s]: %w", code, err)
		}
	}

	if _, err := decimal.NewFromString(c.Auction.BonusPct); err != nil {
		return fmt.Errorf("auction.bonus_pct: %w", err)
	}

	switch c.EventStore.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.EventStore.DSN == "" {
			return fmt.Errorf("eventstore.dsn is required for %s", c.EventStore.Driver)
		}
	default:
		return fmt.Errorf("unknown eventstore.driver %q", c.EventStore.Driver)
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when redis is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Archive.Driver == "s3" && (c.Archive.Bucket == "" || c.Archive.Region == "") {
		return fmt.Errorf("archive.bucket and archive.region are required for s3")
	}

	return nil
}
