// Package audit implements the append-only decision log and its read side.
package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// Header is the column layout of the audit log. Downstream tools depend on it.
var Header = []string{"timestamp", "fraud_probability", "decision"}

// TimestampLayout is ISO-8601 with microsecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// CSVLog appends audit records to a delimited text file.
// A single mutex serializes appends, so rows never interleave and the
// header is written exactly once even when several requests race on a cold start.
type CSVLog struct {
	mu   sync.Mutex
	path string
	last time.Time
	now  func() time.Time
}

// NewCSVLog creates a log writing to path. The file is created lazily on the first append.
func NewCSVLog(path string) *CSVLog {
	return &CSVLog{
		path: path,
		now:  time.Now,
	}
}

// Path returns the log file location.
func (l *CSVLog) Path() string {
	return l.path
}

// Append writes rec as one row at the end of the log and returns the record
// as written. A decision that was already made is always recorded, so ctx
// cancellation does not stop the write.
func (l *CSVLog) Append(_ context.Context, rec domain.AuditRecord) (domain.AuditRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return rec, &domain.PersistenceError{Op: "mkdir", Err: err}
		}
	}

	// #nosec G304 -- path is operator-provided config path.
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return rec, &domain.PersistenceError{Op: "open", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return rec, &domain.PersistenceError{Op: "stat", Err: err}
	}

	out := domain.AuditRecord{
		Timestamp:   rec.Timestamp,
		Probability: domain.RoundProbability(rec.Probability),
		Decision:    rec.Decision,
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = l.now()
	}
	if out.Timestamp.Before(l.last) {
		out.Timestamp = l.last
	}

	var buf bytes.Buffer
	if info.Size() > 0 {
		// A crash mid-write can leave the last row without its newline.
		torn, err := missingNewline(f, info.Size())
		if err != nil {
			return rec, &domain.PersistenceError{Op: "read", Err: err}
		}
		if torn {
			buf.WriteByte('\n')
		}
	}

	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		_ = w.Write(Header)
	}
	_ = w.Write(formatRow(out))
	w.Flush()
	if err := w.Error(); err != nil {
		return rec, &domain.PersistenceError{Op: "encode", Err: err}
	}

	// One write per record keeps rows whole under O_APPEND.
	if _, err := f.Write(buf.Bytes()); err != nil {
		return rec, &domain.PersistenceError{Op: "write", Err: err}
	}
	if err := f.Sync(); err != nil {
		return rec, &domain.PersistenceError{Op: "sync", Err: err}
	}

	l.last = out.Timestamp
	return out, nil
}

func missingNewline(f *os.File, size int64) (bool, error) {
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

func formatRow(rec domain.AuditRecord) []string {
	return []string{
		rec.Timestamp.UTC().Format(TimestampLayout),
		FormatProbability(rec.Probability),
		string(rec.Decision),
	}
}

// FormatProbability renders p rounded to six decimals in its shortest form.
func FormatProbability(p float64) string {
	return strconv.FormatFloat(domain.RoundProbability(p), 'f', -1, 64)
}

// ErrBadHeader is returned when an existing log does not carry the expected columns.
type ErrBadHeader struct {
	Got []string
}

func (e *ErrBadHeader) Error() string {
	return fmt.Sprintf("unexpected audit log header %v, want %v", e.Got, Header)
}
