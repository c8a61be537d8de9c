package dataset

import "unicode/utf8"

const (
	sampleRows  = 3
	sampleWidth = 100
)

// Analysis is the schema summary shown before a dataset is processed
type Analysis struct {
	Source              string              `json:"source"`
	Columns             []string            `json:"columns"`
	RowCount            int                 `json:"row_count"`
	Samples             []map[string]string `json:"samples"`
	SuggestedTextColumn string              `json:"suggested_text_column"`
}

// Analyze summarizes a table: its columns, size, the first rows and a likely text column
func Analyze(t *Table) Analysis {
	a := Analysis{
		Source:              t.Source,
		Columns:             append([]string(nil), t.Columns...),
		RowCount:            t.Len(),
		Samples:             []map[string]string{},
		SuggestedTextColumn: suggestTextColumn(t),
	}

	for row := 0; row < t.Len() && row < sampleRows; row++ {
		sample := make(map[string]string, len(t.Columns))
		for col, name := range t.Columns {
			sample[name] = truncate(t.Cell(row, col), sampleWidth)
		}
		a.Samples = append(a.Samples, sample)
	}
	return a
}

// suggestTextColumn picks the column with the longest average cell, first one on ties
func suggestTextColumn(t *Table) string {
	if len(t.Columns) == 0 {
		return ""
	}
	best, bestLen := 0, -1
	for col := range t.Columns {
		total := 0
		for row := 0; row < t.Len(); row++ {
			total += utf8.RuneCountInString(t.Cell(row, col))
		}
		if total > bestLen {
			best, bestLen = col, total
		}
	}
	return t.Columns[best]
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
