// Package domain defines the core interfaces and types for fraudscore.
package domain

import (
	"context"
	"time"
)

// AuditLog is the append-only durable store of scoring decisions.
type AuditLog interface {
	// Append writes exactly one record at the end of the log and returns the
	// record as persisted, which may carry an adjusted timestamp.
	Append(ctx context.Context, rec AuditRecord) (AuditRecord, error)
}

// Repository mirrors audit records into a queryable database.
// The CSV audit log stays the system of record; the mirror serves queries.
type Repository interface {
	// SaveRecord stores a mirrored decision event.
	SaveRecord(ctx context.Context, event *DecisionEvent) error

	// ListRecords returns the most recent records, newest first.
	ListRecords(ctx context.Context, limit int) ([]*DecisionEvent, error)

	// CountByDecision counts mirrored records per decision since the given instant.
	CountByDecision(ctx context.Context, since time.Time) (map[Decision]int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "none"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     int    `yaml:"postgres_port"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	PostgresDB       string `yaml:"postgres_db"`
	PostgresSSLMode  string `yaml:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}
