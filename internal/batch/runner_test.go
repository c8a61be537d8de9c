package batch

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/jobsift/internal/checkpoint"
	"github.com/ppiankov/jobsift/internal/model"
	"github.com/ppiankov/jobsift/internal/taxonomy"
)

var sampleTexts = []string{
	"76 CHANDLER, AZ AIRCRAFT PARTS jobs",
	"Airport jobs available now",
	"Customer satisfaction guaranteed - HVAC Technician wanted",
	"12 Welder jobs",
	"Healthcare jobs. Apply to: Registered Nurse, LPN",
	"1234 Main Street, Springfield, IL 62704",
	"35 Security Guard jobs",
	"8 aircraft parts jobs",
	"Barista wanted for downtown cafe",
	"150 Phoenix, AZ CDL Driver jobs",
}

// sliceDataset serves postings from memory and can hook row reads
type sliceDataset struct {
	postings []model.Posting
	onRow    func(i int)
	failRow  int
}

func newDataset(texts []string) *sliceDataset {
	ds := &sliceDataset{failRow: -1}
	for i, text := range texts {
		ds.postings = append(ds.postings, model.Posting{RowID: i, RawText: text})
	}
	return ds
}

func (d *sliceDataset) Len() int { return len(d.postings) }

func (d *sliceDataset) At(i int) (model.Posting, error) {
	if d.onRow != nil {
		d.onRow(i)
	}
	if i == d.failRow {
		return model.Posting{}, errors.New("corrupt cell")
	}
	return d.postings[i], nil
}

// recordingStore remembers the last completed row of every save
type recordingStore struct {
	checkpoint.Store
	mu   sync.Mutex
	last []int
	fail func(*model.Checkpoint) bool
}

func (s *recordingStore) Save(ctx context.Context, jobID string, state *model.Checkpoint) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail != nil && fail(state) {
		return errors.New("disk full")
	}
	s.mu.Lock()
	s.last = append(s.last, state.Job.LastCompletedRow)
	s.mu.Unlock()
	return s.Store.Save(ctx, jobID, state)
}

func (s *recordingStore) setFail(fail func(*model.Checkpoint) bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

func (s *recordingStore) saves() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.last...)
}

func newTestRunner(t *testing.T, opts ...Option) (*Runner, *recordingStore) {
	t.Helper()
	tax, err := taxonomy.Default()
	if err != nil {
		t.Fatalf("load taxonomy: %v", err)
	}
	store := &recordingStore{Store: checkpoint.NewMemoryStore()}
	return NewRunner(tax, store, opts...), store
}

func runToEnd(t *testing.T, r *Runner, ds Dataset, start, end, batchSize int) string {
	t.Helper()
	ctx := context.Background()
	id, err := r.Start(ctx, ds, start, end, batchSize)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Run(ctx, id); err != nil {
		t.Fatalf("run: %v", err)
	}
	return id
}

func TestStart_RangeValidation(t *testing.T) {
	r, _ := newTestRunner(t)
	ds := newDataset(sampleTexts)

	tests := []struct {
		start, end int
	}{
		{5, 2},
		{-1, 3},
		{0, 10},
	}
	for _, tt := range tests {
		_, err := r.Start(context.Background(), ds, tt.start, tt.end, 10)
		var rangeErr *RangeError
		if !errors.As(err, &rangeErr) {
			t.Errorf("start(%d, %d): expected RangeError, got %v", tt.start, tt.end, err)
		}
	}

	if len(r.Jobs()) != 0 {
		t.Error("rejected ranges must not register jobs")
	}
}

func TestStart_CreatesPendingJob(t *testing.T) {
	r, store := newTestRunner(t)
	id, err := r.Start(context.Background(), newDataset(sampleTexts), 2, 6, 3)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	job, err := r.Status(id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if job.Status != model.StatusPending {
		t.Errorf("expected pending, got %s", job.Status)
	}
	if job.LastCompletedRow != 1 {
		t.Errorf("expected last completed row 1, got %d", job.LastCompletedRow)
	}
	if job.Dataset.Rows != len(sampleTexts) {
		t.Errorf("expected dataset size %d, got %d", len(sampleTexts), job.Dataset.Rows)
	}
	if got := store.saves(); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("expected one initial checkpoint, got %v", got)
	}
}

func TestRun_FullRange(t *testing.T) {
	r, _ := newTestRunner(t)
	id := runToEnd(t, r, newDataset(sampleTexts), 0, len(sampleTexts)-1, 4)

	job, _ := r.Status(id)
	if job.Status != model.StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if job.Progress() != 1 {
		t.Errorf("expected full progress, got %f", job.Progress())
	}

	rows, _ := r.Results(id)
	if len(rows) != len(sampleTexts) {
		t.Fatalf("expected %d rows, got %d", len(sampleTexts), len(rows))
	}
	for i, row := range rows {
		if row.RowID != i {
			t.Errorf("expected row %d at position %d, got %d", i, i, row.RowID)
		}
	}

	first := rows[0]
	if first.Extraction.Title != "Aircraft Parts" || first.Classification.Category != "Aviation Mechanic" ||
		first.Classification.Precision != model.PrecisionExact {
		t.Errorf("unexpected first row: %+v / %+v", first.Extraction, first.Classification)
	}
	if rows[5].Extraction.MatchedRule != model.RuleAddress || rows[5].Classification.Category != model.CategoryOther {
		t.Errorf("expected address row to be Unknown/OTHER, got %+v", rows[5])
	}
}

func TestRun_CheckpointInterval(t *testing.T) {
	r, store := newTestRunner(t, WithCheckpointEvery(3))
	runToEnd(t, r, newDataset(sampleTexts), 0, 9, 100)

	want := []int{-1, -1, 2, 5, 8, 9}
	if got := store.saves(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected checkpoints after rows %v, got %v", want, got)
	}
}

func TestRun_CompletedIsNoop(t *testing.T) {
	r, store := newTestRunner(t)
	id := runToEnd(t, r, newDataset(sampleTexts), 0, 3, 2)
	before := len(store.saves())

	if err := r.Resume(context.Background(), id); err != nil {
		t.Errorf("expected resume of completed job to succeed, got %v", err)
	}
	if len(store.saves()) != before {
		t.Error("resume of completed job must not write checkpoints")
	}
	rows, _ := r.Results(id)
	if len(rows) != 4 {
		t.Errorf("expected 4 rows, got %d", len(rows))
	}
}

func TestRun_RowFailureDegrades(t *testing.T) {
	r, _ := newTestRunner(t)
	ds := newDataset(sampleTexts)
	ds.failRow = 2

	id := runToEnd(t, r, ds, 0, 4, 10)

	job, _ := r.Status(id)
	if job.Status != model.StatusCompleted {
		t.Errorf("expected completed despite bad row, got %s", job.Status)
	}
	if job.FailedRows != 1 {
		t.Errorf("expected 1 failed row, got %d", job.FailedRows)
	}

	rows, _ := r.Results(id)
	bad := rows[2]
	if !bad.Failed() {
		t.Fatal("expected row 2 to carry an error note")
	}
	if bad.Extraction.Title != model.UnknownTitle || bad.Classification.Category != model.CategoryOther ||
		bad.Classification.Confidence != 0 {
		t.Errorf("expected Unknown/OTHER/0, got %+v", bad)
	}
	if rows[3].Failed() {
		t.Error("rows after the bad one must process normally")
	}
}

func TestPauseResume_MatchesSinglePass(t *testing.T) {
	single, _ := newTestRunner(t)
	singleID := runToEnd(t, single, newDataset(sampleTexts), 0, 9, 3)
	want, _ := single.Results(singleID)

	r, store := newTestRunner(t)
	ds := newDataset(sampleTexts)
	ctx := context.Background()

	id, err := r.Start(ctx, ds, 0, 9, 3)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ds.onRow = func(i int) {
		if i == 4 {
			if err := r.Pause(id); err != nil {
				t.Errorf("pause: %v", err)
			}
		}
	}

	if err := r.Run(ctx, id); err != nil {
		t.Fatalf("run: %v", err)
	}
	job, _ := r.Status(id)
	if job.Status != model.StatusPaused {
		t.Fatalf("expected paused, got %s", job.Status)
	}
	if job.LastCompletedRow != 4 {
		t.Errorf("expected pause after row 4, got %d", job.LastCompletedRow)
	}
	persisted, found, err := store.Load(ctx, id)
	if err != nil || !found {
		t.Fatalf("load checkpoint: found=%v err=%v", found, err)
	}
	if persisted.Job.Status != model.StatusPaused || len(persisted.Rows) != 5 {
		t.Errorf("expected paused checkpoint with 5 rows, got %s with %d", persisted.Job.Status, len(persisted.Rows))
	}

	ds.onRow = nil
	if err := r.Resume(ctx, id); err != nil {
		t.Fatalf("resume: %v", err)
	}

	got, _ := r.Results(id)
	if !reflect.DeepEqual(got, want) {
		t.Error("pause/resume produced different rows than a single pass")
	}

	saves := store.saves()
	for i := 1; i < len(saves); i++ {
		if saves[i] < saves[i-1] {
			t.Errorf("last completed row went backwards: %v", saves)
			break
		}
	}
}

func TestPause_States(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx := context.Background()
	ds := newDataset(sampleTexts)

	id, _ := r.Start(ctx, ds, 0, 2, 1)
	var transition *TransitionError
	if err := r.Pause(id); !errors.As(err, &transition) {
		t.Errorf("expected TransitionError pausing a pending job, got %v", err)
	}

	if err := r.Run(ctx, id); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := r.Pause(id); err != nil {
		t.Errorf("expected pausing a completed job to be a no-op, got %v", err)
	}

	if err := r.Pause("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRun_ContextCancelPauses(t *testing.T) {
	r, _ := newTestRunner(t)
	ds := newDataset(sampleTexts)
	ctx, cancel := context.WithCancel(context.Background())

	id, err := r.Start(ctx, ds, 0, 9, 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ds.onRow = func(i int) {
		if i == 6 {
			cancel()
		}
	}

	if err := r.Run(ctx, id); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	job, _ := r.Status(id)
	if job.Status != model.StatusPaused || job.LastCompletedRow != 6 {
		t.Errorf("expected paused after row 6, got %s at %d", job.Status, job.LastCompletedRow)
	}

	ds.onRow = nil
	if err := r.Resume(context.Background(), id); err != nil {
		t.Fatalf("resume: %v", err)
	}
	rows, _ := r.Results(id)
	if len(rows) != 10 {
		t.Errorf("expected 10 rows, got %d", len(rows))
	}
}

func TestRun_JobBusy(t *testing.T) {
	r, _ := newTestRunner(t)
	ds := newDataset(sampleTexts)
	ctx := context.Background()

	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	ds.onRow = func(i int) {
		once.Do(func() { close(entered) })
		<-release
	}

	id, err := r.Start(ctx, ds, 0, 3, 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.RunAsync(ctx, id); err != nil {
		t.Fatalf("run async: %v", err)
	}
	<-entered

	if err := r.Run(ctx, id); !IsBusy(err) {
		t.Errorf("expected JobBusyError for second run, got %v", err)
	}
	if _, err := r.Reprocess(ctx, ReprocessRequest{JobID: id}); !IsBusy(err) {
		t.Errorf("expected JobBusyError for reprocess during run, got %v", err)
	}

	close(release)
	if err := r.Wait(ctx, id); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if job, _ := r.Status(id); job.Status != model.StatusCompleted {
		t.Errorf("expected completed, got %s", job.Status)
	}
}

func TestRun_CheckpointFailure(t *testing.T) {
	r, store := newTestRunner(t)
	ds := newDataset(sampleTexts)
	ctx := context.Background()

	id, err := r.Start(ctx, ds, 0, 9, 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	store.setFail(func(cp *model.Checkpoint) bool { return cp.Job.LastCompletedRow >= 3 })

	err = r.Run(ctx, id)
	var writeErr *CheckpointWriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected CheckpointWriteError, got %v", err)
	}
	if writeErr.JobID != id || writeErr.LastCompletedRow != 3 || writeErr.EndRow != 9 {
		t.Errorf("expected error detail for job range, got %+v", writeErr)
	}

	job, _ := r.Status(id)
	if job.Status != model.StatusFailed || job.LastError == "" {
		t.Errorf("expected failed job with error note, got %+v", job)
	}

	persisted, _, _ := store.Load(ctx, id)
	if persisted.Job.LastCompletedRow != 1 {
		t.Errorf("expected last good checkpoint at row 1, got %d", persisted.Job.LastCompletedRow)
	}

	store.setFail(nil)
	if err := r.Resume(ctx, id); err != nil {
		t.Fatalf("resume: %v", err)
	}
	rows, _ := r.Results(id)
	if len(rows) != 10 {
		t.Errorf("expected 10 rows after resume, got %d", len(rows))
	}
	for i, row := range rows {
		if row.RowID != i {
			t.Fatalf("expected no duplicated or skipped rows, got row %d at %d", row.RowID, i)
		}
	}
}

func TestAttach(t *testing.T) {
	r, store := newTestRunner(t)
	ds := newDataset(sampleTexts)
	ctx := context.Background()

	id, _ := r.Start(ctx, ds, 0, 9, 5)
	ds.onRow = func(i int) {
		if i == 5 {
			_ = r.Pause(id)
		}
	}
	if err := r.Run(ctx, id); err != nil {
		t.Fatalf("run: %v", err)
	}

	tax, _ := taxonomy.Default()
	restarted := NewRunner(tax, store)

	if err := restarted.Attach(ctx, "missing", nil); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if err := restarted.Attach(ctx, id, newDataset(sampleTexts[:3])); err == nil {
		t.Error("expected short dataset to be rejected")
	}
	if err := restarted.Attach(ctx, id, newDataset(sampleTexts)); err != nil {
		t.Fatalf("attach: %v", err)
	}

	job, _ := restarted.Status(id)
	if job.Status != model.StatusPaused || job.LastCompletedRow != 5 {
		t.Errorf("expected paused at row 5, got %s at %d", job.Status, job.LastCompletedRow)
	}
	if err := restarted.Resume(ctx, id); err != nil {
		t.Fatalf("resume: %v", err)
	}
	rows, _ := restarted.Results(id)
	if len(rows) != 10 {
		t.Errorf("expected 10 rows, got %d", len(rows))
	}
}

func TestProcessRange(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx := context.Background()

	id, err := r.ProcessRange(ctx, newDataset(sampleTexts), 0, 9, 4)
	if err != nil {
		t.Fatalf("process range: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.Wait(waitCtx, id); err != nil {
		t.Fatalf("wait: %v", err)
	}

	job, _ := r.Status(id)
	if job.Status != model.StatusCompleted {
		t.Errorf("expected completed, got %s", job.Status)
	}
}

func overrideTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	doc := `
version: "parts-v2"
categories:
  - name: Parts Specialist
    exact: [aircraft parts]
    general: [parts]
`
	tax, err := taxonomy.Parse([]byte(doc), "override")
	if err != nil {
		t.Fatalf("parse override taxonomy: %v", err)
	}
	return tax
}

func TestReprocess_WithoutOverwrite(t *testing.T) {
	r, _ := newTestRunner(t)
	id := runToEnd(t, r, newDataset(sampleTexts), 0, 9, 5)
	before, _ := r.Results(id)

	report, err := r.Reprocess(context.Background(), ReprocessRequest{
		JobID:    id,
		Filter:   Filter{Field: FieldRawText, Pattern: "aircraft"},
		Taxonomy: overrideTaxonomy(t),
	})
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if report.Matched != 2 {
		t.Errorf("expected 2 matched rows, got %d", report.Matched)
	}
	if report.Audited != 0 {
		t.Errorf("expected no audit without overwrite, got %d", report.Audited)
	}

	after, _ := r.Results(id)
	for i := range after {
		if after[i].Classification != before[i].Classification {
			t.Errorf("row %d: category changed without overwrite", i)
		}
	}
	if rev := after[0].Reprocessed; rev == nil || rev.Classification.Category != "Parts Specialist" || rev.TaxonomyVersion != "parts-v2" {
		t.Errorf("expected revision with Parts Specialist, got %+v", after[0].Reprocessed)
	}
	if after[1].Reprocessed != nil {
		t.Error("unmatched rows must not gain a revision")
	}
	if audit, _ := r.Audit(id); len(audit) != 0 {
		t.Errorf("expected empty audit, got %d entries", len(audit))
	}
}

func TestReprocess_Overwrite(t *testing.T) {
	r, store := newTestRunner(t)
	id := runToEnd(t, r, newDataset(sampleTexts), 0, 9, 5)

	report, err := r.Reprocess(context.Background(), ReprocessRequest{
		JobID:     id,
		Filter:    Filter{Field: FieldCategory, Pattern: "re:^aviation"},
		Overwrite: true,
		Taxonomy:  overrideTaxonomy(t),
	})
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if report.Matched == 0 {
		t.Fatal("expected aviation rows to match")
	}

	audit, _ := r.Audit(id)
	if len(audit) != report.Changed || report.Audited != report.Changed {
		t.Errorf("expected one audit entry per changed row, got %d entries for %d changes", len(audit), report.Changed)
	}

	rows, _ := r.Results(id)
	if rows[0].Classification.Category != "Parts Specialist" {
		t.Errorf("expected row 0 overwritten, got %s", rows[0].Classification.Category)
	}
	if rows[2].Classification.Category != "HVAC Technician" {
		t.Errorf("expected unmatched row untouched, got %s", rows[2].Classification.Category)
	}
	first := audit[0]
	if first.RowID != 0 || first.Old.Category != "Aviation Mechanic" || first.New.Category != "Parts Specialist" {
		t.Errorf("unexpected audit entry %+v", first)
	}

	persisted, _, _ := store.Load(context.Background(), id)
	if len(persisted.Audit) != len(audit) {
		t.Errorf("expected audit persisted, got %d entries", len(persisted.Audit))
	}

	// Same taxonomy again changes nothing
	again, err := r.Reprocess(context.Background(), ReprocessRequest{
		JobID:     id,
		Filter:    Filter{Field: FieldCategory, Pattern: "parts specialist"},
		Overwrite: true,
		Taxonomy:  overrideTaxonomy(t),
	})
	if err != nil {
		t.Fatalf("reprocess again: %v", err)
	}
	if again.Changed != 0 || again.Audited != 0 {
		t.Errorf("expected idempotent reprocess, got %+v", again)
	}
}

func TestReprocess_Validation(t *testing.T) {
	r, _ := newTestRunner(t)
	id := runToEnd(t, r, newDataset(sampleTexts), 2, 6, 5)
	ctx := context.Background()

	outside := 8
	var rangeErr *RangeError
	if _, err := r.Reprocess(ctx, ReprocessRequest{JobID: id, EndRow: &outside}); !errors.As(err, &rangeErr) {
		t.Errorf("expected RangeError, got %v", err)
	}
	if _, err := r.Reprocess(ctx, ReprocessRequest{JobID: id, Filter: Filter{Pattern: "re:("}}); err == nil {
		t.Error("expected bad regex to be rejected")
	}
	if _, err := r.Reprocess(ctx, ReprocessRequest{JobID: id, Filter: Filter{Field: "title"}}); err == nil {
		t.Error("expected unknown field to be rejected")
	}
	if _, err := r.Reprocess(ctx, ReprocessRequest{JobID: "nope"}); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}

	from, to := 3, 4
	report, err := r.Reprocess(ctx, ReprocessRequest{JobID: id, StartRow: &from, EndRow: &to})
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if report.Matched != 2 {
		t.Errorf("expected 2 rows in sub-range, got %d", report.Matched)
	}
}
