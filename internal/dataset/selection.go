package dataset

import (
	"fmt"
	"strings"

	"github.com/ppiankov/jobsift/internal/model"
)

// Selection exposes one text column (and an optional job-id column) of a table as postings
type Selection struct {
	table    *Table
	text     int
	jobID    int
	textName string
	idName   string
}

// Select picks the posting text column and an optional job-id column by header name.
// An empty text column falls back to the suggested one.
func (t *Table) Select(textColumn, jobIDColumn string) (*Selection, error) {
	if strings.TrimSpace(textColumn) == "" {
		textColumn = suggestTextColumn(t)
	}

	s := &Selection{table: t, text: t.Column(textColumn), jobID: -1}
	if s.text < 0 {
		return nil, fmt.Errorf("column %q not found (have %s)", textColumn, strings.Join(t.Columns, ", "))
	}
	s.textName = t.Columns[s.text]

	if strings.TrimSpace(jobIDColumn) != "" {
		s.jobID = t.Column(jobIDColumn)
		if s.jobID < 0 {
			return nil, fmt.Errorf("job id column %q not found (have %s)", jobIDColumn, strings.Join(t.Columns, ", "))
		}
		s.idName = t.Columns[s.jobID]
	}
	return s, nil
}

// Len is the number of rows
func (s *Selection) Len() int {
	return s.table.Len()
}

// At returns row i as a posting
func (s *Selection) At(i int) (model.Posting, error) {
	if i < 0 || i >= s.table.Len() {
		return model.Posting{}, fmt.Errorf("row %d out of range [0, %d)", i, s.table.Len())
	}
	p := model.Posting{RowID: i, RawText: s.table.Cell(i, s.text)}
	if s.jobID >= 0 {
		p.JobID = strings.TrimSpace(s.table.Cell(i, s.jobID))
	}
	return p, nil
}

// Ref records where the postings came from
func (s *Selection) Ref() model.DatasetRef {
	return model.DatasetRef{
		Source:      s.table.Source,
		TextColumn:  s.textName,
		JobIDColumn: s.idName,
		Rows:        s.table.Len(),
	}
}

// Table returns the underlying table
func (s *Selection) Table() *Table {
	return s.table
}

// OpenRef reloads the dataset a job was started from
func OpenRef(ref model.DatasetRef) (*Selection, error) {
	if ref.Source == "" {
		return nil, fmt.Errorf("job has no dataset source recorded")
	}
	t, err := Open(ref.Source)
	if err != nil {
		return nil, err
	}
	return t.Select(ref.TextColumn, ref.JobIDColumn)
}
