package audit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// legacyTimestampLayout matches rows written without a zone offset.
const legacyTimestampLayout = "2006-01-02T15:04:05.999999"

// ReadRecords loads every record from the log at path in file order.
// A log that does not exist yet yields no records and no error.
func ReadRecords(path string) ([]domain.AuditRecord, error) {
	// #nosec G304 -- path is operator-provided config path.
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f)
}

// Decode parses an audit log stream, header first.
func Decode(r io.Reader) ([]domain.AuditRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, col := range Header {
		if header[i] != col {
			return nil, &ErrBadHeader{Got: header}
		}
	}

	var records []domain.AuditRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(records)+1, err)
		}

		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func parseRow(row []string) (domain.AuditRecord, error) {
	ts, err := time.Parse(time.RFC3339Nano, row[0])
	if err != nil {
		ts, err = time.Parse(legacyTimestampLayout, row[0])
		if err != nil {
			return domain.AuditRecord{}, fmt.Errorf("invalid timestamp %q", row[0])
		}
	}

	p, err := strconv.ParseFloat(row[1], 64)
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("invalid probability %q", row[1])
	}

	d, ok := domain.ParseDecision(row[2])
	if !ok {
		return domain.AuditRecord{}, fmt.Errorf("invalid decision %q", row[2])
	}

	return domain.AuditRecord{Timestamp: ts, Probability: p, Decision: d}, nil
}
