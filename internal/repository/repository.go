// Package repository mirrors audit records into SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// timeLayout is fixed width in UTC, so text order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

var (
	// ErrDisabled is returned by New when the driver is "none".
	ErrDisabled     = errors.New("repository disabled")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New opens the configured database and applies the schema.
func New(ctx context.Context, cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "none", "":
		return nil, ErrDisabled
	case "sqlite":
		db, err = openSQLite(ctx, cfg)
	case "postgres":
		db, err = openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate(ctx context.Context) error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.ExecContext(ctx, schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRecord inserts a decision event. Redelivered events (same ID) are ignored.
func (r *SQLRepository) SaveRecord(ctx context.Context, event *domain.DecisionEvent) error {
	if event == nil || event.ID == "" {
		return fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	if !event.Record.Decision.Valid() {
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, event.Record.Decision)
	}

	query := `
		INSERT INTO audit_records (
			id, trace_id, timestamp, fraud_probability, decision, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		event.ID,
		event.TraceID,
		formatTime(event.Record.Timestamp),
		event.Record.Probability,
		string(event.Record.Decision),
		formatTime(time.Now()),
	)
	return err
}

// ListRecords returns up to limit records, newest first.
func (r *SQLRepository) ListRecords(ctx context.Context, limit int) ([]*domain.DecisionEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	query := `
		SELECT id, trace_id, timestamp, fraud_probability, decision
		FROM audit_records
		ORDER BY timestamp DESC, created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.DecisionEvent
	for rows.Next() {
		var (
			ev       domain.DecisionEvent
			traceID  sql.NullString
			ts       string
			decision string
		)
		if err := rows.Scan(&ev.ID, &traceID, &ts, &ev.Record.Probability, &decision); err != nil {
			return nil, err
		}

		ev.TraceID = traceID.String
		ev.Record.Decision = domain.Decision(decision)
		ev.Record.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("record %s: bad timestamp %q: %w", ev.ID, ts, err)
		}

		events = append(events, &ev)
	}

	return events, rows.Err()
}

// CountByDecision counts records with a timestamp at or after since.
// Every decision label is present in the result, zero when unseen.
func (r *SQLRepository) CountByDecision(ctx context.Context, since time.Time) (map[domain.Decision]int64, error) {
	query := `
		SELECT decision, COUNT(*)
		FROM audit_records
		WHERE timestamp >= ?
		GROUP BY decision
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), formatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Decision]int64, len(domain.Decisions))
	for _, d := range domain.Decisions {
		counts[d] = 0
	}

	for rows.Next() {
		var decision string
		var n int64
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, err
		}
		counts[domain.Decision(decision)] = n
	}

	return counts, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
