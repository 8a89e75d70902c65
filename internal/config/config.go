// Package config assembles the service configuration from defaults, an
// optional YAML file and FRAUDSCORE_* environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FRAUDSCORE_"

// Load builds the configuration in order: tier defaults, the YAML file named
// by FRAUDSCORE_CONFIG, environment overrides. A .env file in the working
// directory is loaded first when present. The result is validated.
func Load() (*domain.Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := domain.DefaultConfig()
	if domain.Tier(getEnv("TIER")) == domain.TierPro {
		cfg = domain.ProConfig()
	}

	if path := getEnv("CONFIG"); path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays a YAML file onto cfg. ${VAR} references are expanded
// before parsing; keys absent from the file keep their current values.
func LoadFile(cfg *domain.Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &domain.ConfigurationError{Field: "config", Reason: "cannot read " + path, Err: err}
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return &domain.ConfigurationError{Field: "config", Reason: "cannot parse " + path, Err: err}
	}
	return nil
}

// applyEnv applies the supported FRAUDSCORE_* overrides.
func applyEnv(cfg *domain.Config) error {
	strs := map[string]*string{
		"HOST":          &cfg.Server.Host,
		"SCHEMA_PATH":   &cfg.Scoring.SchemaPath,
		"MODEL_PATH":    &cfg.Scoring.ModelPath,
		"AUDIT_LOG":     &cfg.Audit.LogPath,
		"DB_DRIVER":     &cfg.Repository.Driver,
		"SQLITE_PATH":   &cfg.Repository.SQLitePath,
		"POSTGRES_HOST": &cfg.Repository.PostgresHost,
		"POSTGRES_USER": &cfg.Repository.PostgresUser,
		"POSTGRES_PASS": &cfg.Repository.PostgresPassword,
		"POSTGRES_DB":   &cfg.Repository.PostgresDB,
		"CACHE_TYPE":    &cfg.Cache.Type,
		"REDIS_ADDR":    &cfg.Cache.RedisAddr,
		"REDIS_PASS":    &cfg.Cache.RedisPassword,
		"BUS_TYPE":      &cfg.EventBus.Type,
		"NATS_URL":      &cfg.EventBus.NATSUrl,
		"NATS_TOKEN":    &cfg.EventBus.NATSToken,
		"LOG_LEVEL":     &cfg.Logging.Level,
		"LOG_FORMAT":    &cfg.Logging.Format,
	}
	for key, dst := range strs {
		if v := getEnv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":           &cfg.Server.Port,
		"POSTGRES_PORT":  &cfg.Repository.PostgresPort,
		"SUMMARY_WINDOW": &cfg.Audit.SummaryWindow,
	}
	for key, dst := range ints {
		if v := getEnv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return envError(key, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"REVIEW_THRESHOLD": &cfg.Scoring.ReviewThreshold,
		"BLOCK_THRESHOLD":  &cfg.Scoring.BlockThreshold,
	}
	for key, dst := range floats {
		if v := getEnv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return envError(key, err)
			}
			*dst = f
		}
	}

	durations := map[string]*time.Duration{
		"SUMMARY_CACHE_TTL": &cfg.Audit.SummaryCacheTTL,
		"STATS_WINDOW":      &cfg.Stats.Window,
	}
	for key, dst := range durations {
		if v := getEnv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return envError(key, err)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"LEGACY_ERRORS": &cfg.Server.LegacyErrorStatus,
		"TRACING":       &cfg.Tracing.Enabled,
	}
	for key, dst := range bools {
		if v := getEnv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return envError(key, err)
			}
			*dst = b
		}
	}

	if getEnv("DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	return nil
}

// Validate rejects configurations the service cannot start with.
func Validate(cfg *domain.Config) error {
	if err := cfg.Scoring.Policy().Validate(); err != nil {
		return err
	}

	required := []struct {
		field string
		value string
	}{
		{"scoring.schema_path", cfg.Scoring.SchemaPath},
		{"scoring.model_path", cfg.Scoring.ModelPath},
		{"audit.log_path", cfg.Audit.LogPath},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &domain.ConfigurationError{Field: r.field, Reason: "is required"}
		}
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return &domain.ConfigurationError{Field: "server.port", Reason: fmt.Sprintf("%d is out of range", cfg.Server.Port)}
	}
	if cfg.Audit.SummaryWindow <= 0 {
		return &domain.ConfigurationError{Field: "audit.summary_window", Reason: "must be positive"}
	}
	if cfg.Audit.SummaryCacheTTL < 0 {
		return &domain.ConfigurationError{Field: "audit.summary_cache_ttl", Reason: "must not be negative"}
	}

	choices := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"repository.driver", cfg.Repository.Driver, []string{"none", "sqlite", "postgres"}},
		{"cache.type", cfg.Cache.Type, []string{"memory", "redis"}},
		{"event_bus.type", cfg.EventBus.Type, []string{"channel", "nats"}},
		{"logging.level", strings.ToLower(cfg.Logging.Level), []string{"debug", "info", "warn", "error"}},
		{"logging.format", cfg.Logging.Format, []string{"json", "text"}},
	}
	for _, c := range choices {
		if !slices.Contains(c.allowed, c.value) {
			return &domain.ConfigurationError{
				Field:  c.field,
				Reason: fmt.Sprintf("%q is not one of %s", c.value, strings.Join(c.allowed, ", ")),
			}
		}
	}

	return nil
}

// NewLogger builds the process logger: JSON by default, text when asked.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func slogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func envError(key string, err error) error {
	return &domain.ConfigurationError{Field: EnvPrefix + key, Reason: "malformed value", Err: err}
}
