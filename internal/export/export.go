package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ppiankov/jobsift/internal/model"
)

// Format is an output file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" in any case
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatXLSX, "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want csv or xlsx)", s)
	}
}

// FormatFromPath picks the format from a file extension, defaulting to fallback
func FormatFromPath(path string, fallback Format) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX
	case ".csv":
		return FormatCSV
	default:
		return fallback
	}
}

var baseColumns = []string{
	"row_id",
	"job_id",
	"extracted_job_title",
	"job_category",
	"general_category",
	"confidence",
	"job_details",
	"original_content",
	"error",
}

var revisionColumns = []string{
	"reprocessed_job_title",
	"reprocessed_job_category",
	"reprocessed_general_category",
	"reprocessed_confidence",
	"reprocessed_job_details",
}

// Header returns the column names for rows; reprocessed columns appear only when a row has a revision
func Header(rows []model.ProcessedRow) []string {
	header := append([]string(nil), baseColumns...)
	if hasRevisions(rows) {
		header = append(header, revisionColumns...)
	}
	return header
}

func hasRevisions(rows []model.ProcessedRow) bool {
	for _, r := range rows {
		if r.Reprocessed != nil {
			return true
		}
	}
	return false
}

// Record renders one row as strings in Header order
func Record(row model.ProcessedRow, withRevision bool) []string {
	rec := []string{
		strconv.Itoa(row.RowID),
		row.JobID,
		row.Extraction.Title,
		row.Classification.Category,
		string(row.Classification.Precision),
		formatConfidence(row.Classification.Confidence),
		strings.Join(row.Context, ", "),
		row.RawText,
		row.Error,
	}
	if !withRevision {
		return rec
	}
	if rev := row.Reprocessed; rev != nil {
		return append(rec,
			rev.Extraction.Title,
			rev.Classification.Category,
			string(rev.Classification.Precision),
			formatConfidence(rev.Classification.Confidence),
			strings.Join(rev.Context, ", "),
		)
	}
	return append(rec, "", "", "", "", "")
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}

// WriteCSV writes rows as CSV with a header line
func WriteCSV(w io.Writer, rows []model.ProcessedRow) error {
	cw := csv.NewWriter(w)
	header := Header(rows)
	withRevision := len(header) > len(baseColumns)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(Record(row, withRevision)); err != nil {
			return fmt.Errorf("write csv row %d: %w", row.RowID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// SheetName is the worksheet XLSX exports are written to
const SheetName = "Results"

// WriteXLSX writes rows to a single-sheet workbook. Numeric columns stay numeric.
func WriteXLSX(w io.Writer, rows []model.ProcessedRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	header := Header(rows)
	withRevision := len(header) > len(baseColumns)
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	for i, row := range rows {
		rec := Record(row, withRevision)
		values := make([]interface{}, len(rec))
		for j, v := range rec {
			values[j] = v
		}
		values[0] = row.RowID
		values[5] = row.Classification.Confidence
		if withRevision && row.Reprocessed != nil {
			values[len(baseColumns)+3] = row.Reprocessed.Classification.Confidence
		}

		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("xlsx row %d: %w", row.RowID, err)
		}
	}

	_ = f.SetColWidth(SheetName, "C", "C", 28) // title
	_ = f.SetColWidth(SheetName, "D", "D", 22) // category
	_ = f.SetColWidth(SheetName, "G", "G", 40) // details
	_ = f.SetColWidth(SheetName, "H", "H", 60) // original text

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// WriteFile writes rows to path in the given format, creating parent directories
func WriteFile(path string, format Format, rows []model.ProcessedRow) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	switch format {
	case FormatXLSX:
		err = WriteXLSX(f, rows)
	default:
		err = WriteCSV(f, rows)
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", path, cerr)
	}
	return err
}
