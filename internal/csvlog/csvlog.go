// Package csvlog exports and imports the session log as CSV.
//
// The format is one header row followed by one row per record:
//
//	id,task_name,action,elapsed,phase,timestamp
//
// Imported ids are ignored; the database assigns new ones.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	apperrors "github.com/codechrono/chrono/internal/errors"
	"github.com/codechrono/chrono/internal/storage"
)

// Header is the column list written by Export and required by Import.
var Header = []string{"id", "task_name", "action", "elapsed", "phase", "timestamp"}

var validActions = map[string]bool{
	storage.ActionStart:    true,
	storage.ActionPause:    true,
	storage.ActionResume:   true,
	storage.ActionComplete: true,
}

// Export writes records as CSV.
func Export(w io.Writer, records []storage.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.TaskName,
			r.Action,
			strconv.FormatInt(r.Elapsed, 10),
			strconv.Itoa(r.Phase),
			strconv.FormatInt(r.Timestamp, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Parse reads a CSV session log. It fails on the first malformed row and
// reports its line number.
func Parse(r io.Reader) ([]storage.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if err == io.EOF {
		return nil, apperrors.New(apperrors.CodeImportInvalidHeader, "file is empty")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeImportInvalidHeader, "cannot read header", err)
	}
	for i, col := range Header {
		if strings.TrimSpace(strings.TrimPrefix(head[i], "\ufeff")) != col {
			return nil, apperrors.New(apperrors.CodeImportInvalidHeader,
				fmt.Sprintf("header column %d is %q, want %q", i+1, head[i], col))
		}
	}

	var records []storage.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeImportInvalidRow, fmt.Sprintf("line %d", line), err)
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeImportInvalidRow, fmt.Sprintf("line %d", line), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string) (storage.Record, error) {
	var rec storage.Record
	rec.TaskName = row[1]

	rec.Action = strings.TrimSpace(row[2])
	if !validActions[rec.Action] {
		return rec, fmt.Errorf("unknown action %q", row[2])
	}

	elapsed, err := strconv.ParseInt(strings.TrimSpace(row[3]), 10, 64)
	if err != nil || elapsed < 0 {
		return rec, fmt.Errorf("invalid elapsed %q", row[3])
	}
	rec.Elapsed = elapsed

	phase, err := strconv.Atoi(strings.TrimSpace(row[4]))
	if err != nil || phase < 0 || phase > 2 {
		return rec, fmt.Errorf("invalid phase %q", row[4])
	}
	rec.Phase = phase

	ts, err := strconv.ParseInt(strings.TrimSpace(row[5]), 10, 64)
	if err != nil {
		return rec, fmt.Errorf("invalid timestamp %q", row[5])
	}
	rec.Timestamp = ts
	return rec, nil
}

// Import parses r and inserts every record in one transaction. Nothing is
// written if any row is invalid. Returns the number of records inserted.
func Import(store *storage.SQLiteStore, r io.Reader) (int, error) {
	records, err := Parse(r)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	if err := store.InsertRecords(records); err != nil {
		return 0, apperrors.WriteFailed("imported records", err)
	}
	return len(records), nil
}
