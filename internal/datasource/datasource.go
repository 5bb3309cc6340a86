// internal/datasource/datasource.go
// Package datasource resolves test data kept outside the scripts: a table with one row per
// test case and one column per field, loaded from an xlsx workbook or a csv file.
package datasource

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Source looks up the value of key for a test case. ok is false when either is unknown.
type Source interface {
	Lookup(testCase, key string) (value string, ok bool, err error)
}

// MapSource is an in-memory Source keyed by test case, then field.
type MapSource map[string]map[string]string

func (m MapSource) Lookup(testCase, key string) (string, bool, error) {
	v, ok := m[testCase][key]
	return v, ok, nil
}

// Table is a Source built from rows whose first column names the test case. The header row
// names the fields.
type Table struct {
	fields []string
	rows   map[string]map[string]string
}

// NewTable builds a table. Duplicate test case rows are rejected, short rows are padded.
func NewTable(header []string, records [][]string) (*Table, error) {
	if len(header) < 2 {
		return nil, fmt.Errorf("data table needs a test case column and at least one field, got %d columns", len(header))
	}
	fields := make([]string, len(header))
	for i, h := range header {
		fields[i] = strings.TrimSpace(h)
	}
	t := &Table{fields: fields[1:], rows: make(map[string]map[string]string, len(records))}
	for i, rec := range records {
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		name := strings.TrimSpace(rec[0])
		if _, dup := t.rows[name]; dup {
			return nil, fmt.Errorf("data row %d: duplicate test case %q", i+2, name)
		}
		row := make(map[string]string, len(t.fields))
		for j, field := range t.fields {
			if j+1 < len(rec) {
				row[field] = rec[j+1]
			} else {
				row[field] = ""
			}
		}
		t.rows[name] = row
	}
	return t, nil
}

func (t *Table) Lookup(testCase, key string) (string, bool, error) {
	row, ok := t.rows[testCase]
	if !ok {
		return "", false, nil
	}
	v, ok := row[key]
	return v, ok, nil
}

// Fields returns the field names in column order.
func (t *Table) Fields() []string { return append([]string(nil), t.fields...) }

// Len returns the number of test cases.
func (t *Table) Len() int { return len(t.rows) }

// Open loads a table from path, choosing the format by extension. sheet selects the xlsx
// worksheet; empty means the first one.
func Open(path, sheet string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return LoadXLSX(path, sheet)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open data file: %w", err)
		}
		defer f.Close()
		return LoadCSV(f)
	default:
		return nil, fmt.Errorf("unsupported data file %q: want .xlsx or .csv", path)
	}
}

// LoadXLSX reads a worksheet of an xlsx workbook.
func LoadXLSX(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return readWorkbook(f, sheet)
}

// ReadXLSX reads a worksheet from an xlsx stream.
func ReadXLSX(r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	defer f.Close()
	return readWorkbook(f, sheet)
}

func readWorkbook(f *excelize.File, sheet string) (*Table, error) {
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}
	return NewTable(rows[0], rows[1:])
}

// LoadCSV reads a comma separated table.
func LoadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv data is empty")
	}
	return NewTable(records[0], records[1:])
}

// Resolver decides whether a step input is a literal or a key into the data source.
type Resolver struct {
	src    Source
	logger *zap.Logger
}

// NewResolver creates a Resolver. src may be nil when no data file is configured.
func NewResolver(src Source, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{src: src, logger: logger.Named("datasource")}
}

// Resolve returns input unchanged when useExternal is false. Otherwise input is a field name
// looked up for testCase. A missing test case, field or data source yields "" and a warning,
// not an error, so optional fields can be left out of the table. Errors from the source
// itself are returned.
func (r *Resolver) Resolve(testCase, input string, useExternal bool) (string, error) {
	if !useExternal {
		return input, nil
	}
	if r.src == nil {
		r.logger.Warn("External value requested but no data source is configured.",
			zap.String("test_case", testCase), zap.String("key", input))
		return "", nil
	}
	v, ok, err := r.src.Lookup(testCase, input)
	if err != nil {
		return "", fmt.Errorf("lookup %q for %q: %w", input, testCase, err)
	}
	if !ok {
		// Kept for compatibility with existing tables, though it also hides typos in keys.
		r.logger.Warn("Data key not found, using empty string.",
			zap.String("test_case", testCase), zap.String("key", input))
		return "", nil
	}
	return v, nil
}
