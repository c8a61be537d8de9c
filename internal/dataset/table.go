package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrEmpty is returned for files without a header row
var ErrEmpty = errors.New("dataset is empty")

// Table is a header row plus string cells, in file order
type Table struct {
	Source  string
	Columns []string
	Rows    [][]string
}

// Open loads a CSV or XLSX file, chosen by extension
func Open(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return LoadXLSX(f, path)
	case ".csv", ".txt", "":
		return LoadCSV(f, path)
	case ".tsv":
		return loadDelimited(f, path, '\t')
	default:
		return nil, fmt.Errorf("unsupported dataset format %q (want .csv, .tsv or .xlsx)", filepath.Ext(path))
	}
}

// LoadCSV reads a comma separated table. The first record is the header.
func LoadCSV(r io.Reader, source string) (*Table, error) {
	return loadDelimited(r, source, ',')
}

func loadDelimited(r io.Reader, source string, comma rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	return newTable(source, records)
}

// LoadXLSX reads the first worksheet of a workbook. The first row is the header.
func LoadXLSX(r io.Reader, source string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("read %s: %w", source, ErrEmpty)
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read %s sheet %q: %w", source, sheets[0], err)
	}
	return newTable(source, records)
}

func newTable(source string, records [][]string) (*Table, error) {
	var rows [][]string
	for _, rec := range records {
		if blank(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read %s: %w", source, ErrEmpty)
	}

	header := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		header[i] = name
	}

	return &Table{Source: source, Columns: header, Rows: rows[1:]}, nil
}

func blank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Len is the number of data rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the index of a header, matched case-insensitively, or -1
func (t *Table) Column(name string) int {
	name = strings.TrimSpace(name)
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Cell returns a cell value; short rows read as empty cells
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}
