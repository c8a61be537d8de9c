package model

import "time"

// JobStatus is the lifecycle state of a batch job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusPaused    JobStatus = "paused"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// transitions lists the legal status changes. completed is terminal.
var transitions = map[JobStatus][]JobStatus{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusCompleted, StatusPaused, StatusFailed},
	StatusPaused:  {StatusRunning},
	StatusFailed:  {StatusRunning},
}

// CanTransition reports whether a job may move from one status to another
func (s JobStatus) CanTransition(to JobStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further work can happen on the job
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted
}

// DatasetRef records where a job's rows came from so it can be resumed later
type DatasetRef struct {
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`
	TextColumn  string `json:"text_column,omitempty" yaml:"text_column,omitempty"`
	JobIDColumn string `json:"job_id_column,omitempty" yaml:"job_id_column,omitempty"`
	Rows        int    `json:"rows"`
}

// BatchJob tracks progress of one row range through the pipeline.
// Invariant: StartRow <= LastCompletedRow+1 <= EndRow+1.
type BatchJob struct {
	JobID            string     `json:"job_id"`
	StartRow         int        `json:"start_row"`
	EndRow           int        `json:"end_row"`
	BatchSize        int        `json:"batch_size"`
	Status           JobStatus  `json:"status"`
	LastCompletedRow int        `json:"last_completed_row"`
	FailedRows       int        `json:"failed_rows"`
	Dataset          DatasetRef `json:"dataset"`
	LastError        string     `json:"last_error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TotalRows is the number of rows in the job's range
func (j BatchJob) TotalRows() int {
	return j.EndRow - j.StartRow + 1
}

// DoneRows is the number of rows already processed
func (j BatchJob) DoneRows() int {
	return j.LastCompletedRow - j.StartRow + 1
}

// Progress returns completion as a fraction in [0,1]
func (j BatchJob) Progress() float64 {
	total := j.TotalRows()
	if total <= 0 {
		return 0
	}
	return float64(j.DoneRows()) / float64(total)
}
