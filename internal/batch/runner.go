package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/jobsift/internal/checkpoint"
	"github.com/ppiankov/jobsift/internal/logging"
	"github.com/ppiankov/jobsift/internal/model"
	"github.com/ppiankov/jobsift/internal/pipeline"
	"github.com/ppiankov/jobsift/internal/taxonomy"
	"github.com/ppiankov/jobsift/internal/worker"
)

// DefaultCheckpointEvery caps the number of rows between checkpoints
const DefaultCheckpointEvery = 1000

// Dataset is an ordered, randomly indexable sequence of postings with a known length
type Dataset interface {
	Len() int
	At(i int) (model.Posting, error)
}

// Referenced is implemented by datasets that know where they were loaded from
type Referenced interface {
	Ref() model.DatasetRef
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the runner's logger
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithLimiter throttles rows per job
func WithLimiter(l *worker.Limiter) Option {
	return func(r *Runner) {
		r.limiter = l
	}
}

// WithCheckpointEvery sets the upper bound on rows between checkpoints
func WithCheckpointEvery(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.checkpointEvery = n
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// Runner drives batch jobs through the pipeline and persists their checkpoints.
// Rows of one job are processed strictly in order by a single goroutine;
// different jobs may run concurrently.
type Runner struct {
	pipeline        *pipeline.Pipeline
	store           checkpoint.Store
	logger          *logging.Logger
	limiter         *worker.Limiter
	checkpointEvery int
	now             func() time.Time

	mu   sync.Mutex
	jobs map[string]*jobState
}

type jobState struct {
	mu      sync.Mutex
	job     model.BatchJob
	rows    []model.ProcessedRow // ascending by RowID
	audit   []model.AuditEntry
	ds      Dataset
	busy    bool
	done    chan struct{} // closed when the active run returns
	lastErr error
	pause   atomic.Bool
}

// NewRunner creates a runner bound to one taxonomy and checkpoint store
func NewRunner(tax *taxonomy.Taxonomy, store checkpoint.Store, opts ...Option) *Runner {
	r := &Runner{
		pipeline:        pipeline.NewPipeline(tax),
		store:           store,
		logger:          logging.Nop(),
		checkpointEvery: DefaultCheckpointEvery,
		now:             time.Now,
		jobs:            make(map[string]*jobState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TaxonomyVersion identifies the taxonomy new runs classify with
func (r *Runner) TaxonomyVersion() string {
	return r.pipeline.TaxonomyVersion()
}

// Start validates the range and registers a pending job. Nothing is processed yet.
func (r *Runner) Start(ctx context.Context, ds Dataset, startRow, endRow, batchSize int) (string, error) {
	n := ds.Len()
	switch {
	case startRow < 0:
		return "", &RangeError{Start: startRow, End: endRow, Len: n, Reason: "start row is negative"}
	case startRow > endRow:
		return "", &RangeError{Start: startRow, End: endRow, Len: n, Reason: "start row is after end row"}
	case endRow >= n:
		return "", &RangeError{Start: startRow, End: endRow, Len: n, Reason: "end row is past the last row"}
	}
	if batchSize <= 0 {
		return "", fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	now := r.now().UTC()
	job := model.BatchJob{
		JobID:            uuid.NewString(),
		StartRow:         startRow,
		EndRow:           endRow,
		BatchSize:        batchSize,
		Status:           model.StatusPending,
		LastCompletedRow: startRow - 1,
		Dataset:          model.DatasetRef{Rows: n},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if ref, ok := ds.(Referenced); ok {
		job.Dataset = ref.Ref()
		job.Dataset.Rows = n
	}

	st := &jobState{job: job, rows: []model.ProcessedRow{}, ds: ds}
	if err := r.save(ctx, st); err != nil {
		return "", r.checkpointError(st, err)
	}

	r.mu.Lock()
	r.jobs[job.JobID] = st
	r.mu.Unlock()

	r.logger.Info("job created", "job_id", job.JobID, "start_row", startRow, "end_row", endRow, "batch_size", batchSize)
	return job.JobID, nil
}

// Run processes the job's remaining rows. A completed job is a successful no-op.
// It returns nil when the job completes or pauses, and ctx.Err() when ctx ends the run.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	st, done, err := r.begin(jobID)
	if err != nil || st == nil {
		return err
	}
	return r.execute(ctx, st, done)
}

// Resume continues a paused or failed job from its last completed row
func (r *Runner) Resume(ctx context.Context, jobID string) error {
	return r.Run(ctx, jobID)
}

// ProcessRange starts a job and runs it in the background, returning its ID immediately
func (r *Runner) ProcessRange(ctx context.Context, ds Dataset, startRow, endRow, batchSize int) (string, error) {
	jobID, err := r.Start(ctx, ds, startRow, endRow, batchSize)
	if err != nil {
		return "", err
	}
	if err := r.RunAsync(ctx, jobID); err != nil {
		return jobID, err
	}
	return jobID, nil
}

// RunAsync marks the job running and processes it in the background
func (r *Runner) RunAsync(ctx context.Context, jobID string) error {
	st, done, err := r.begin(jobID)
	if err != nil || st == nil {
		return err
	}
	go func() {
		_ = r.execute(ctx, st, done)
	}()
	return nil
}

// Pause asks a running job to stop after the row in progress. It does not wait.
func (r *Runner) Pause(jobID string) error {
	st, err := r.lookup(jobID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	switch st.job.Status {
	case model.StatusRunning:
		st.pause.Store(true)
		r.logger.Info("pause requested", "job_id", jobID, "last_completed_row", st.job.LastCompletedRow)
		return nil
	case model.StatusPaused, model.StatusCompleted:
		return nil
	default:
		return &TransitionError{JobID: jobID, From: st.job.Status, To: model.StatusPaused}
	}
}

// Wait blocks until the job's active run returns and reports that run's error
func (r *Runner) Wait(ctx context.Context, jobID string) error {
	st, err := r.lookup(jobID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	done := st.done
	st.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastErr
}

// Attach makes a job from the checkpoint store known to this runner.
// ds may be nil for read-only access; Run requires a dataset.
// A job persisted as running belonged to a process that died and is reported as paused.
func (r *Runner) Attach(ctx context.Context, jobID string, ds Dataset) error {
	r.mu.Lock()
	st, known := r.jobs[jobID]
	r.mu.Unlock()

	if known {
		if ds == nil {
			return nil
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.busy {
			return &JobBusyError{JobID: jobID}
		}
		if err := checkDataset(st.job, ds); err != nil {
			return err
		}
		st.ds = ds
		return nil
	}

	state, found, err := r.store.Load(ctx, jobID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if ds != nil {
		if err := checkDataset(state.Job, ds); err != nil {
			return err
		}
	}

	if state.Job.Status == model.StatusRunning {
		state.Job.Status = model.StatusPaused
	}
	rows := state.Rows
	if rows == nil {
		rows = []model.ProcessedRow{}
	}
	st = &jobState{job: state.Job, rows: rows, audit: state.Audit, ds: ds}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, raced := r.jobs[jobID]; !raced {
		r.jobs[jobID] = st
	}
	r.logger.Debug("job attached", "job_id", jobID, "status", state.Job.Status, "last_completed_row", state.Job.LastCompletedRow)
	return nil
}

// Status returns a snapshot of the job
func (r *Runner) Status(jobID string) (model.BatchJob, error) {
	st, err := r.lookup(jobID)
	if err != nil {
		return model.BatchJob{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.job, nil
}

// Results returns the processed rows ordered by row ID
func (r *Runner) Results(jobID string) ([]model.ProcessedRow, error) {
	st, err := r.lookup(jobID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]model.ProcessedRow, len(st.rows))
	copy(out, st.rows)
	return out, nil
}

// Audit returns the overwrite history of the job
func (r *Runner) Audit(jobID string) ([]model.AuditEntry, error) {
	st, err := r.lookup(jobID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]model.AuditEntry, len(st.audit))
	copy(out, st.audit)
	return out, nil
}

// Jobs lists snapshots of every job this runner knows, oldest first
func (r *Runner) Jobs() []model.BatchJob {
	r.mu.Lock()
	states := make([]*jobState, 0, len(r.jobs))
	for _, st := range r.jobs {
		states = append(states, st)
	}
	r.mu.Unlock()

	jobs := make([]model.BatchJob, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		jobs = append(jobs, st.job)
		st.mu.Unlock()
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].JobID < jobs[j].JobID
	})
	return jobs
}

func (r *Runner) lookup(jobID string) (*jobState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return st, nil
}

// begin claims the job for one run. A nil state with nil error means there is nothing to do.
func (r *Runner) begin(jobID string) (*jobState, chan struct{}, error) {
	st, err := r.lookup(jobID)
	if err != nil {
		return nil, nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.busy {
		return nil, nil, &JobBusyError{JobID: jobID}
	}
	if st.job.Status == model.StatusCompleted {
		return nil, nil, nil
	}
	if !st.job.Status.CanTransition(model.StatusRunning) {
		return nil, nil, &TransitionError{JobID: jobID, From: st.job.Status, To: model.StatusRunning}
	}
	if st.ds == nil {
		return nil, nil, fmt.Errorf("job %s has no dataset attached", jobID)
	}

	st.busy = true
	st.pause.Store(false)
	st.lastErr = nil
	st.done = make(chan struct{})
	st.job.Status = model.StatusRunning
	st.job.LastError = ""
	st.job.UpdatedAt = r.now().UTC()
	return st, st.done, nil
}

func (r *Runner) execute(ctx context.Context, st *jobState, done chan struct{}) (err error) {
	defer func() {
		st.mu.Lock()
		st.busy = false
		st.lastErr = err
		close(done)
		st.mu.Unlock()
	}()

	jobID := st.job.JobID
	log := r.logger.With("job_id", jobID)
	defer r.limiter.Forget(jobID)

	if err := r.save(ctx, st); err != nil {
		return r.fail(st, err)
	}

	interval := st.job.BatchSize
	if r.checkpointEvery < interval {
		interval = r.checkpointEvery
	}

	log.Info("job running", "from_row", st.job.LastCompletedRow+1, "end_row", st.job.EndRow)

	sinceCheckpoint := 0
	for row := st.job.LastCompletedRow + 1; row <= st.job.EndRow; row++ {
		if st.pause.Load() || ctx.Err() != nil {
			return r.stop(ctx, st)
		}
		if err := r.limiter.Wait(ctx, jobID); err != nil {
			return r.stop(ctx, st)
		}

		result := r.processRow(st, row, log)

		st.mu.Lock()
		st.rows = append(st.rows, result)
		st.job.LastCompletedRow = row
		if result.Failed() {
			st.job.FailedRows++
		}
		st.mu.Unlock()

		sinceCheckpoint++
		if sinceCheckpoint >= interval {
			if err := r.save(ctx, st); err != nil {
				return r.fail(st, err)
			}
			sinceCheckpoint = 0
		}
	}

	st.mu.Lock()
	st.job.Status = model.StatusCompleted
	st.job.UpdatedAt = r.now().UTC()
	st.mu.Unlock()

	if err := r.save(ctx, st); err != nil {
		return r.fail(st, err)
	}

	log.Info("job completed", "rows", st.job.TotalRows(), "failed_rows", st.job.FailedRows)
	return nil
}

func (r *Runner) processRow(st *jobState, row int, log *logging.Logger) model.ProcessedRow {
	posting, err := st.ds.At(row)
	if err == nil {
		posting.RowID = row
		var result model.ProcessedRow
		if result, err = r.pipeline.Process(posting); err == nil {
			return result
		}
	} else {
		posting = model.Posting{RowID: row}
	}

	rowErr := &RowProcessingError{JobID: st.job.JobID, RowID: row, Cause: err}
	log.Warn("row failed", "row_id", row, "error", rowErr)
	return pipeline.Failed(posting, rowErr)
}

// stop checkpoints the whole rows processed so far and parks the job as paused
func (r *Runner) stop(ctx context.Context, st *jobState) error {
	st.mu.Lock()
	st.job.Status = model.StatusPaused
	st.job.UpdatedAt = r.now().UTC()
	last := st.job.LastCompletedRow
	st.mu.Unlock()

	if err := r.save(ctx, st); err != nil {
		return r.fail(st, err)
	}

	r.logger.Info("job paused", "job_id", st.job.JobID, "last_completed_row", last)
	return ctx.Err()
}

func (r *Runner) fail(st *jobState, cause error) error {
	st.mu.Lock()
	st.job.Status = model.StatusFailed
	st.job.LastError = cause.Error()
	st.job.UpdatedAt = r.now().UTC()
	st.mu.Unlock()

	err := r.checkpointError(st, cause)
	r.logger.Error("job failed", "job_id", st.job.JobID, "error", err)
	return err
}

func (r *Runner) checkpointError(st *jobState, cause error) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return &CheckpointWriteError{
		JobID:            st.job.JobID,
		StartRow:         st.job.StartRow,
		EndRow:           st.job.EndRow,
		LastCompletedRow: st.job.LastCompletedRow,
		Cause:            cause,
	}
}

// save persists a consistent snapshot of the job. Cancellation of ctx does not
// abort the write, so a cancelled run still leaves a whole-row checkpoint.
func (r *Runner) save(ctx context.Context, st *jobState) error {
	st.mu.Lock()
	state := &model.Checkpoint{
		Job:     st.job,
		Rows:    append([]model.ProcessedRow(nil), st.rows...),
		Audit:   append([]model.AuditEntry(nil), st.audit...),
		SavedAt: r.now().UTC(),
	}
	st.mu.Unlock()

	return r.store.Save(context.WithoutCancel(ctx), state.Job.JobID, state)
}

func checkDataset(job model.BatchJob, ds Dataset) error {
	if n := ds.Len(); job.EndRow >= n {
		return &RangeError{Start: job.StartRow, End: job.EndRow, Len: n, Reason: "dataset is shorter than the job's range"}
	}
	return nil
}

// IsBusy reports whether err is a JobBusyError
func IsBusy(err error) bool {
	var busy *JobBusyError
	return errors.As(err, &busy)
}

// Preview classifies up to n leading rows of ds without creating a job
func (r *Runner) Preview(ds Dataset, n int) []model.ProcessedRow {
	if n <= 0 || n > ds.Len() {
		n = ds.Len()
	}
	rows := make([]model.ProcessedRow, 0, n)
	log := r.logger.With("preview", true)
	st := &jobState{ds: ds}
	for i := 0; i < n; i++ {
		rows = append(rows, r.processRow(st, i, log))
	}
	return rows
}
