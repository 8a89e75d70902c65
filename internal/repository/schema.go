package repository

// Timestamps are stored as fixed-width UTC text with microseconds so that
// string comparison orders them chronologically on both SQLite and PostgreSQL.

const schemaAuditRecords = `
CREATE TABLE IF NOT EXISTS audit_records (
    id TEXT PRIMARY KEY,
    trace_id TEXT,
    timestamp TEXT NOT NULL,
    fraud_probability REAL NOT NULL,
    decision TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_records_timestamp ON audit_records(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_records_decision ON audit_records(decision, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAuditRecords,
	}
}
