package batch

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/ppiankov/jobsift/internal/model"
	"github.com/ppiankov/jobsift/internal/pipeline"
	"github.com/ppiankov/jobsift/internal/taxonomy"
)

// FilterField selects what a reprocess filter looks at
type FilterField string

const (
	FieldRawText  FilterField = "raw_text"
	FieldCategory FilterField = "category"
)

// Filter selects rows by a keyword or "re:<regex>" pattern. An empty pattern matches every row.
type Filter struct {
	Field   FilterField `json:"field"`
	Pattern string      `json:"pattern"`
}

func (f Filter) compile() (func(model.ProcessedRow) bool, error) {
	var value func(model.ProcessedRow) string
	switch f.Field {
	case FieldRawText, "":
		value = func(row model.ProcessedRow) string { return row.RawText }
	case FieldCategory:
		value = func(row model.ProcessedRow) string { return row.Classification.Category }
	default:
		return nil, fmt.Errorf("unknown filter field %q (want raw_text or category)", f.Field)
	}

	pattern := strings.TrimSpace(f.Pattern)
	if pattern == "" {
		return func(model.ProcessedRow) bool { return true }, nil
	}

	if expr, ok := strings.CutPrefix(pattern, "re:"); ok {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", pattern, err)
		}
		return func(row model.ProcessedRow) bool { return re.MatchString(value(row)) }, nil
	}

	keyword := strings.ToLower(pattern)
	return func(row model.ProcessedRow) bool {
		return strings.Contains(strings.ToLower(value(row)), keyword)
	}, nil
}

// ReprocessRequest selects previously processed rows to run through the pipeline again
type ReprocessRequest struct {
	JobID     string
	StartRow  *int // Defaults to the job's start row
	EndRow    *int // Defaults to the job's end row
	Filter    Filter
	Overwrite bool
	Taxonomy  *taxonomy.Taxonomy // Defaults to the runner's taxonomy
}

// ReprocessReport summarizes one reprocess call
type ReprocessReport struct {
	JobID           string `json:"job_id"`
	Matched         int    `json:"matched"`
	Changed         int    `json:"changed"`
	Audited         int    `json:"audited"`
	Overwrite       bool   `json:"overwrite"`
	TaxonomyVersion string `json:"taxonomy_version"`
}

// Reprocess re-runs the pipeline over matching rows of a job. Without overwrite the
// new results are stored beside the originals; with overwrite they replace them and
// every row whose result changed gets an audit entry.
func (r *Runner) Reprocess(ctx context.Context, req ReprocessRequest) (*ReprocessReport, error) {
	match, err := req.Filter.compile()
	if err != nil {
		return nil, err
	}

	p := r.pipeline
	if req.Taxonomy != nil {
		p = pipeline.NewPipeline(req.Taxonomy)
	}

	st, err := r.claim(req.JobID)
	if err != nil {
		return nil, err
	}
	defer r.release(st)

	st.mu.Lock()
	job := st.job
	st.mu.Unlock()

	from, to := job.StartRow, job.EndRow
	if req.StartRow != nil {
		from = *req.StartRow
	}
	if req.EndRow != nil {
		to = *req.EndRow
	}
	if from > to || from < job.StartRow || to > job.EndRow {
		return nil, &RangeError{Start: from, End: to, Len: job.TotalRows(),
			Reason: fmt.Sprintf("reprocess range must lie within the job's rows [%d, %d]", job.StartRow, job.EndRow)}
	}

	report := &ReprocessReport{JobID: job.JobID, Overwrite: req.Overwrite, TaxonomyVersion: p.TaxonomyVersion()}
	log := r.logger.With("job_id", job.JobID)

	st.mu.Lock()
	for i := range st.rows {
		row := &st.rows[i]
		if row.RowID < from || row.RowID > to || !match(*row) {
			continue
		}
		report.Matched++

		fresh, err := p.Process(row.Posting)
		if err != nil {
			rowErr := &RowProcessingError{JobID: job.JobID, RowID: row.RowID, Cause: err}
			log.Warn("row failed on reprocess", "row_id", row.RowID, "error", rowErr)
			fresh = pipeline.Failed(row.Posting, rowErr)
		}

		changed := changedResult(*row, fresh)
		if changed {
			report.Changed++
		}

		if !req.Overwrite {
			row.Reprocessed = &model.Revision{
				Extraction:      fresh.Extraction,
				Context:         fresh.Context,
				Classification:  fresh.Classification,
				TaxonomyVersion: report.TaxonomyVersion,
			}
			continue
		}

		if !changed {
			continue
		}
		st.audit = append(st.audit, model.AuditEntry{
			JobID:           job.JobID,
			RowID:           row.RowID,
			OldTitle:        row.Extraction.Title,
			NewTitle:        fresh.Extraction.Title,
			Old:             row.Classification,
			New:             fresh.Classification,
			TaxonomyVersion: report.TaxonomyVersion,
			At:              r.now().UTC(),
		})
		report.Audited++

		if row.Failed() {
			st.job.FailedRows--
		}
		if fresh.Failed() {
			st.job.FailedRows++
		}
		row.Extraction = fresh.Extraction
		row.Context = fresh.Context
		row.Classification = fresh.Classification
		row.Error = fresh.Error
		row.Reprocessed = nil
	}
	st.job.UpdatedAt = r.now().UTC()
	st.mu.Unlock()

	if err := r.save(ctx, st); err != nil {
		return nil, r.checkpointError(st, err)
	}

	log.Info("reprocess finished", "matched", report.Matched, "changed", report.Changed,
		"audited", report.Audited, "overwrite", req.Overwrite, "taxonomy_version", report.TaxonomyVersion)
	return report, nil
}

// claim gives the caller exclusive write access to a job that is not running
func (r *Runner) claim(jobID string) (*jobState, error) {
	st, err := r.lookup(jobID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.busy {
		return nil, &JobBusyError{JobID: jobID}
	}
	st.busy = true
	return st, nil
}

func (r *Runner) release(st *jobState) {
	st.mu.Lock()
	st.busy = false
	st.mu.Unlock()
}

func changedResult(old, fresh model.ProcessedRow) bool {
	return old.Extraction.Title != fresh.Extraction.Title ||
		old.Classification != fresh.Classification ||
		old.Error != fresh.Error ||
		!reflect.DeepEqual(old.Context, fresh.Context)
}
