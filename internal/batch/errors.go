package batch

import (
	"errors"
	"fmt"

	"github.com/ppiankov/jobsift/internal/model"
)

// ErrJobNotFound is returned for job IDs the runner and its store do not know
var ErrJobNotFound = errors.New("job not found")

// RangeError reports invalid row bounds, rejected before any processing starts
type RangeError struct {
	Start  int
	End    int
	Len    int
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid row range [%d, %d] for %d rows: %s", e.Start, e.End, e.Len, e.Reason)
}

// JobBusyError is returned when a job already has an active writer
type JobBusyError struct {
	JobID string
}

func (e *JobBusyError) Error() string {
	return fmt.Sprintf("job %s is busy", e.JobID)
}

// RowProcessingError describes one row that degraded to Unknown/OTHER
type RowProcessingError struct {
	JobID string
	RowID int
	Cause error
}

func (e *RowProcessingError) Error() string {
	return fmt.Sprintf("job %s row %d: %v", e.JobID, e.RowID, e.Cause)
}

func (e *RowProcessingError) Unwrap() error {
	return e.Cause
}

// CheckpointWriteError is fatal to a job
type CheckpointWriteError struct {
	JobID            string
	StartRow         int
	EndRow           int
	LastCompletedRow int
	Cause            error
}

func (e *CheckpointWriteError) Error() string {
	return fmt.Sprintf("job %s rows [%d, %d]: checkpoint after row %d failed: %v",
		e.JobID, e.StartRow, e.EndRow, e.LastCompletedRow, e.Cause)
}

func (e *CheckpointWriteError) Unwrap() error {
	return e.Cause
}

// TransitionError is returned for status changes the job lifecycle forbids
type TransitionError struct {
	JobID string
	From  model.JobStatus
	To    model.JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s cannot go from %s to %s", e.JobID, e.From, e.To)
}
