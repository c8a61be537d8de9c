package model

import "time"

// CheckpointVersion is bumped whenever the persisted layout changes
const CheckpointVersion = 1

// Checkpoint is the persisted snapshot of a batch job
type Checkpoint struct {
	Version int            `json:"version"`
	Job     BatchJob       `json:"job"`
	Rows    []ProcessedRow `json:"rows"` // Ordered by row ID
	Audit   []AuditEntry   `json:"audit,omitempty"`
	SavedAt time.Time      `json:"saved_at"`
}

// AuditEntry records one overwriting reprocess of a row
type AuditEntry struct {
	JobID           string               `json:"job_id"`
	RowID           int                  `json:"row_id"`
	OldTitle        string               `json:"old_title"`
	NewTitle        string               `json:"new_title"`
	Old             ClassificationResult `json:"old"`
	New             ClassificationResult `json:"new"`
	TaxonomyVersion string               `json:"taxonomy_version,omitempty"`
	At              time.Time            `json:"at"`
}
