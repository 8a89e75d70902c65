package domain

import (
	"time"
)

// Config holds the complete fraudscore configuration.
// It is built once at startup and treated as immutable afterwards.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Tier selects the infrastructure defaults
	Tier Tier `yaml:"tier"`

	// Scoring artifacts and decision thresholds
	Scoring ScoringConfig `yaml:"scoring"`

	// Audit log location and dashboard aggregation
	Audit AuditConfig `yaml:"audit"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"event_bus"`
	Stats      StatsConfig      `yaml:"stats"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds

	// LegacyErrorStatus answers contract and scoring failures on /predict
	// with 200 and an "error" field, for clients of the first API version.
	LegacyErrorStatus bool `yaml:"legacy_error_status"`
}

// ScoringConfig points at the startup artifacts and holds the threshold policy.
type ScoringConfig struct {
	SchemaPath      string  `yaml:"schema_path"`
	ModelPath       string  `yaml:"model_path"`
	ReviewThreshold float64 `yaml:"review_threshold"`
	BlockThreshold  float64 `yaml:"block_threshold"`
}

// Policy returns the configured threshold policy.
func (s ScoringConfig) Policy() ThresholdPolicy {
	return ThresholdPolicy{Review: s.ReviewThreshold, Block: s.BlockThreshold}
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	LogPath         string        `yaml:"log_path"`
	SummaryWindow   int           `yaml:"summary_window"`
	SummaryCacheTTL time.Duration `yaml:"summary_cache_ttl"`
}

// StatsConfig holds decision rate counter settings.
type StatsConfig struct {
	Window time.Duration `yaml:"window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-memory counters
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	policy := DefaultThresholdPolicy()
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Scoring: ScoringConfig{
			SchemaPath:      "./model/feature_list.json",
			ModelPath:       "./model/fraud_model.json",
			ReviewThreshold: policy.Review,
			BlockThreshold:  policy.Block,
		},
		Audit: AuditConfig{
			LogPath:         "./monitoring/transaction_logs.csv",
			SummaryWindow:   200,
			SummaryCacheTTL: 5 * time.Second,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./fraudscore.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Stats: StatsConfig{
			Window: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fraudscore",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "fraudscore",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Second,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
