// Package sheetstore persists named tables inside a single .xlsx workbook.
// Each sheet carries a header row that defines column order; rows are
// appended, never reordered, and queried with linear equality scans. The
// workbook is shared with the web dashboard, so the format stays
// human-auditable and externally editable.
package sheetstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/medconn/medconnect/internal/fsstore"
)

var (
	// ErrStoreUnavailable marks a read or write that failed for
	// availability reasons. Callers decide whether to retry; the store
	// never retries internally.
	ErrStoreUnavailable = errors.New("sheetstore: store unavailable")
	ErrRecordNotFound   = errors.New("sheetstore: record not found")
)

type Store struct {
	mu     sync.Mutex
	path   string
	file   *excelize.File
	logger *slog.Logger
}

func Open(path string, logger *slog.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var file *excelize.File
	if _, err := os.Stat(path); err == nil {
		file, err = excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: open workbook %s: %v", ErrStoreUnavailable, path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		file = excelize.NewFile()
	} else {
		return nil, fmt.Errorf("%w: stat workbook %s: %v", ErrStoreUnavailable, path, err)
	}

	return &Store{path: path, file: file, logger: logger}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Table opens the named sheet, provisioning it with defaultHeader when
// absent. Missing tables are self-healing, never an error.
func (s *Store) Table(name string, defaultHeader []string) (*Table, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if len(defaultHeader) == 0 {
		return nil, fmt.Errorf("default header is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.file.GetSheetIndex(name)
	if err != nil {
		return nil, fmt.Errorf("%w: sheet index %s: %v", ErrStoreUnavailable, name, err)
	}
	if idx < 0 {
		if _, err := s.file.NewSheet(name); err != nil {
			return nil, fmt.Errorf("%w: create sheet %s: %v", ErrStoreUnavailable, name, err)
		}
		for col, field := range defaultHeader {
			cell, cellErr := excelize.CoordinatesToCellName(col+1, 1)
			if cellErr != nil {
				return nil, fmt.Errorf("%w: header cell: %v", ErrStoreUnavailable, cellErr)
			}
			if err := s.file.SetCellValue(name, cell, field); err != nil {
				return nil, fmt.Errorf("%w: write header %s: %v", ErrStoreUnavailable, name, err)
			}
		}
		// Drop the excelize placeholder sheet once a real table exists.
		if defaultIdx, _ := s.file.GetSheetIndex("Sheet1"); defaultIdx >= 0 && name != "Sheet1" {
			_ = s.file.DeleteSheet("Sheet1")
		}
		if err := s.saveLocked(); err != nil {
			return nil, err
		}
		s.logger.Info("sheetstore_table_provisioned", "table", name, "columns", len(defaultHeader))
	}

	return &Table{store: s, name: name}, nil
}

// Table addresses rows by the value of the sheet's first header column (the
// record id). Field access always resolves through the header row, never by
// hard-coded positions.
type Table struct {
	store *Store
	name  string
}

func (t *Table) Name() string {
	return t.name
}

type Record struct {
	Row    int // 1-based sheet row
	Fields map[string]string
}

func (r Record) ID(idColumn string) string {
	return strings.TrimSpace(r.Fields[idColumn])
}

func (t *Table) headerLocked() ([]string, error) {
	rows, err := t.store.file.GetRows(t.name)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, t.name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: table %s has no header row", ErrStoreUnavailable, t.name)
	}
	header := make([]string, 0, len(rows[0]))
	for _, field := range rows[0] {
		header = append(header, strings.TrimSpace(field))
	}
	return header, nil
}

// ensureColumnLocked returns the 0-based column index for field, extending
// the header row in place when the column does not exist yet (append-only
// schema growth).
func (t *Table) ensureColumnLocked(header []string, field string) ([]string, int, error) {
	field = strings.TrimSpace(field)
	for i, existing := range header {
		if existing == field {
			return header, i, nil
		}
	}
	col := len(header)
	cell, err := excelize.CoordinatesToCellName(col+1, 1)
	if err != nil {
		return header, 0, fmt.Errorf("%w: header cell: %v", ErrStoreUnavailable, err)
	}
	if err := t.store.file.SetCellValue(t.name, cell, field); err != nil {
		return header, 0, fmt.Errorf("%w: extend header %s: %v", ErrStoreUnavailable, t.name, err)
	}
	t.store.logger.Info("sheetstore_header_extended", "table", t.name, "column", field)
	return append(header, field), col, nil
}

// Append writes one row and returns the value of the id column.
func (t *Table) Append(fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("fields are required")
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	header, err := t.headerLocked()
	if err != nil {
		return "", err
	}
	for field := range fields {
		header, _, err = t.ensureColumnLocked(header, field)
		if err != nil {
			return "", err
		}
	}

	rows, err := t.store.file.GetRows(t.name)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, t.name, err)
	}
	rowNum := len(rows) + 1

	for col, field := range header {
		value, ok := fields[field]
		if !ok {
			continue
		}
		cell, cellErr := excelize.CoordinatesToCellName(col+1, rowNum)
		if cellErr != nil {
			return "", fmt.Errorf("%w: cell name: %v", ErrStoreUnavailable, cellErr)
		}
		if err := t.store.file.SetCellValue(t.name, cell, value); err != nil {
			return "", fmt.Errorf("%w: write %s row %d: %v", ErrStoreUnavailable, t.name, rowNum, err)
		}
	}
	if err := t.store.saveLocked(); err != nil {
		return "", err
	}
	return strings.TrimSpace(fields[header[0]]), nil
}

// Scan returns all rows whose columns equal every value in match. A nil or
// empty match returns every row.
func (t *Table) Scan(match map[string]string) ([]Record, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.scanLocked(match)
}

func (t *Table) scanLocked(match map[string]string) ([]Record, error) {
	header, err := t.headerLocked()
	if err != nil {
		return nil, err
	}
	rows, err := t.store.file.GetRows(t.name)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, t.name, err)
	}

	out := make([]Record, 0, len(rows))
	for i, row := range rows {
		if i == 0 {
			continue
		}
		fields := make(map[string]string, len(header))
		empty := true
		for col, field := range header {
			if field == "" {
				continue
			}
			value := ""
			if col < len(row) {
				value = strings.TrimSpace(row[col])
			}
			fields[field] = value
			if value != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		matched := true
		for field, want := range match {
			if fields[strings.TrimSpace(field)] != strings.TrimSpace(want) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, Record{Row: i + 1, Fields: fields})
		}
	}
	return out, nil
}

func (t *Table) findRowLocked(recordID string) (int, []string, error) {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return 0, nil, fmt.Errorf("record id is required")
	}
	header, err := t.headerLocked()
	if err != nil {
		return 0, nil, err
	}
	records, err := t.scanLocked(map[string]string{header[0]: recordID})
	if err != nil {
		return 0, nil, err
	}
	if len(records) == 0 {
		return 0, nil, fmt.Errorf("%w: %s %s", ErrRecordNotFound, t.name, recordID)
	}
	return records[0].Row, header, nil
}

func (t *Table) UpdateCell(recordID string, field string, value string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	row, header, err := t.findRowLocked(recordID)
	if err != nil {
		return err
	}
	header, col, err := t.ensureColumnLocked(header, field)
	if err != nil {
		return err
	}
	_ = header
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return fmt.Errorf("%w: cell name: %v", ErrStoreUnavailable, err)
	}
	if err := t.store.file.SetCellValue(t.name, cell, value); err != nil {
		return fmt.Errorf("%w: update %s row %d: %v", ErrStoreUnavailable, t.name, row, err)
	}
	return t.store.saveLocked()
}

// DeleteRow removes the row positionally; later rows shift up.
func (t *Table) DeleteRow(recordID string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	row, _, err := t.findRowLocked(recordID)
	if err != nil {
		return err
	}
	if err := t.store.file.RemoveRow(t.name, row); err != nil {
		return fmt.Errorf("%w: delete %s row %d: %v", ErrStoreUnavailable, t.name, row, err)
	}
	return t.store.saveLocked()
}

// RowCount reports the number of data rows (header excluded).
func (t *Table) RowCount() (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	rows, err := t.store.file.GetRows(t.name)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, t.name, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return len(rows) - 1, nil
}

func (s *Store) saveLocked() error {
	buf, err := s.file.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("%w: serialize workbook: %v", ErrStoreUnavailable, err)
	}
	if err := fsstore.WriteBytesAtomic(s.path, buf.Bytes(), fsstore.FileOptions{FilePerm: 0o644}); err != nil {
		return fmt.Errorf("%w: save workbook %s: %v", ErrStoreUnavailable, s.path, err)
	}
	return nil
}
