package worker

import (
	"context"
	"fmt"
)

// JobRunner runs one batch job until it completes, pauses or fails
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// RunTask runs one batch job on the pool
type RunTask struct {
	JobID  string
	Runner JobRunner
}

// Execute runs the job
func (t *RunTask) Execute(ctx context.Context) Outcome {
	return &RunOutcome{JobID: t.JobID, Err: t.Runner.Run(ctx, t.JobID)}
}

// RunOutcome reports how one job's run ended
type RunOutcome struct {
	JobID string
	Err   error
}

// GetError returns the run error
func (o *RunOutcome) GetError() error {
	return o.Err
}

// RunJobs runs independent jobs concurrently, each as its own sequential
// worker. Outcomes come back in the order of jobIDs.
func RunJobs(ctx context.Context, runner JobRunner, jobIDs []string, concurrency int) []*RunOutcome {
	if len(jobIDs) == 0 {
		return []*RunOutcome{}
	}

	pool := NewPool(ctx, concurrency)
	pool.Start()

	for _, id := range jobIDs {
		if !pool.Submit(&RunTask{JobID: id, Runner: runner}) {
			break
		}
	}

	byID := make(map[string]*RunOutcome, len(jobIDs))
	for _, outcome := range pool.Wait() {
		o := outcome.(*RunOutcome)
		byID[o.JobID] = o
	}

	ordered := make([]*RunOutcome, len(jobIDs))
	for i, id := range jobIDs {
		if o, ok := byID[id]; ok {
			ordered[i] = o
			continue
		}
		ordered[i] = &RunOutcome{JobID: id, Err: fmt.Errorf("job %s not run: %w", id, context.Cause(ctx))}
	}
	return ordered
}

// Span is an inclusive row range
type Span struct {
	Start int
	End   int
}

// SplitRange divides [start, end] into at most parts contiguous spans of near-equal size
func SplitRange(start, end, parts int) []Span {
	total := end - start + 1
	if total <= 0 {
		return nil
	}
	if parts <= 0 {
		parts = 1
	}
	if parts > total {
		parts = total
	}

	spans := make([]Span, 0, parts)
	size, extra := total/parts, total%parts
	next := start
	for i := 0; i < parts; i++ {
		n := size
		if i < extra {
			n++
		}
		spans = append(spans, Span{Start: next, End: next + n - 1})
		next += n
	}
	return spans
}
