package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Tier != domain.TierCommunity {
		t.Errorf("expected community tier, got %s", cfg.Tier)
	}
	if cfg.Scoring.ReviewThreshold != 0.90 || cfg.Scoring.BlockThreshold != 0.993 {
		t.Errorf("unexpected default thresholds: %+v", cfg.Scoring)
	}
	if cfg.Audit.LogPath != "./monitoring/transaction_logs.csv" {
		t.Errorf("unexpected default log path: %s", cfg.Audit.LogPath)
	}
	if cfg.Audit.SummaryWindow != 200 {
		t.Errorf("expected summary window 200, got %d", cfg.Audit.SummaryWindow)
	}
}

func TestLoadProTier(t *testing.T) {
	t.Setenv("FRAUDSCORE_TIER", "pro")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Repository.Driver != "postgres" || cfg.Cache.Type != "redis" || cfg.EventBus.Type != "nats" {
		t.Errorf("expected pro infrastructure, got repo=%s cache=%s bus=%s",
			cfg.Repository.Driver, cfg.Cache.Type, cfg.EventBus.Type)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TEST_AUDIT_DIR", "/var/lib/fraudscore")

	path := writeFile(t, "fraudscore.yaml", `
server:
  port: 9090
  legacy_error_status: true
scoring:
  review_threshold: 0.8
  block_threshold: 0.95
audit:
  log_path: ${TEST_AUDIT_DIR}/decisions.csv
  summary_cache_ttl: 2s
repository:
  driver: none
stats:
  window: 15m
`)
	t.Setenv("FRAUDSCORE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 || !cfg.Server.LegacyErrorStatus {
		t.Errorf("server section not applied: %+v", cfg.Server)
	}
	if cfg.Scoring.ReviewThreshold != 0.8 || cfg.Scoring.BlockThreshold != 0.95 {
		t.Errorf("thresholds not applied: %+v", cfg.Scoring)
	}
	if cfg.Audit.LogPath != "/var/lib/fraudscore/decisions.csv" {
		t.Errorf("env not expanded in log path: %s", cfg.Audit.LogPath)
	}
	if cfg.Audit.SummaryCacheTTL != 2*time.Second || cfg.Stats.Window != 15*time.Minute {
		t.Errorf("durations not parsed: ttl=%v window=%v", cfg.Audit.SummaryCacheTTL, cfg.Stats.Window)
	}
	if cfg.Repository.Driver != "none" {
		t.Errorf("expected repository disabled, got %s", cfg.Repository.Driver)
	}
	// untouched keys keep defaults
	if cfg.Scoring.SchemaPath != "./model/feature_list.json" {
		t.Errorf("default schema path lost: %s", cfg.Scoring.SchemaPath)
	}
}

func TestLoadFileErrors(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		t.Setenv("FRAUDSCORE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := Load()
		var cfgErr *domain.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		t.Setenv("FRAUDSCORE_CONFIG", writeFile(t, "bad.yaml", "scoring: [unclosed"))
		_, err := Load()
		var cfgErr *domain.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FRAUDSCORE_PORT", "8181")
	t.Setenv("FRAUDSCORE_REVIEW_THRESHOLD", "0.7")
	t.Setenv("FRAUDSCORE_BLOCK_THRESHOLD", "0.99")
	t.Setenv("FRAUDSCORE_AUDIT_LOG", "/tmp/log.csv")
	t.Setenv("FRAUDSCORE_LEGACY_ERRORS", "true")
	t.Setenv("FRAUDSCORE_STATS_WINDOW", "10m")
	t.Setenv("FRAUDSCORE_DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8181 {
		t.Errorf("expected port 8181, got %d", cfg.Server.Port)
	}
	if cfg.Scoring.Policy() != (domain.ThresholdPolicy{Review: 0.7, Block: 0.99}) {
		t.Errorf("unexpected policy: %+v", cfg.Scoring.Policy())
	}
	if cfg.Audit.LogPath != "/tmp/log.csv" {
		t.Errorf("unexpected log path: %s", cfg.Audit.LogPath)
	}
	if !cfg.Server.LegacyErrorStatus {
		t.Error("expected legacy error status")
	}
	if cfg.Stats.Window != 10*time.Minute {
		t.Errorf("expected stats window 10m, got %v", cfg.Stats.Window)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestEnvOverridesMalformed(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"FRAUDSCORE_PORT", "eighty"},
		{"FRAUDSCORE_BLOCK_THRESHOLD", "high"},
		{"FRAUDSCORE_STATS_WINDOW", "an hour"},
		{"FRAUDSCORE_LEGACY_ERRORS", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			var cfgErr *domain.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Field != tt.key {
				t.Errorf("expected field %s, got %s", tt.key, cfgErr.Field)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
		field  string
	}{
		{"ReviewEqualsBlock", func(c *domain.Config) { c.Scoring.ReviewThreshold = 0.95; c.Scoring.BlockThreshold = 0.95 }, "thresholds"},
		{"ReviewAboveBlock", func(c *domain.Config) { c.Scoring.ReviewThreshold = 0.99; c.Scoring.BlockThreshold = 0.9 }, "thresholds"},
		{"BlockAboveOne", func(c *domain.Config) { c.Scoring.BlockThreshold = 1.5 }, "thresholds"},
		{"NoSchema", func(c *domain.Config) { c.Scoring.SchemaPath = " " }, "scoring.schema_path"},
		{"NoModel", func(c *domain.Config) { c.Scoring.ModelPath = "" }, "scoring.model_path"},
		{"NoLog", func(c *domain.Config) { c.Audit.LogPath = "" }, "audit.log_path"},
		{"BadPort", func(c *domain.Config) { c.Server.Port = 70000 }, "server.port"},
		{"ZeroWindow", func(c *domain.Config) { c.Audit.SummaryWindow = 0 }, "audit.summary_window"},
		{"UnknownDriver", func(c *domain.Config) { c.Repository.Driver = "mysql" }, "repository.driver"},
		{"UnknownCache", func(c *domain.Config) { c.Cache.Type = "memcached" }, "cache.type"},
		{"UnknownBus", func(c *domain.Config) { c.EventBus.Type = "kafka" }, "event_bus.type"},
		{"UnknownLevel", func(c *domain.Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			var cfgErr *domain.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, cfgErr.Field)
			}
		})
	}

	t.Run("DefaultsValid", func(t *testing.T) {
		if err := Validate(domain.DefaultConfig()); err != nil {
			t.Errorf("default config rejected: %v", err)
		}
		if err := Validate(domain.ProConfig()); err != nil {
			t.Errorf("pro config rejected: %v", err)
		}
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(domain.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("dropped")
	logger.Warn("kept", "decision", "BLOCK")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at warn level, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if entry["msg"] != "kept" || entry["decision"] != "BLOCK" {
		t.Errorf("unexpected entry: %v", entry)
	}

	buf.Reset()
	NewLogger(domain.LoggingConfig{Level: "debug", Format: "text"}, &buf).Debug("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text handler output, got %q", buf.String())
	}
}
