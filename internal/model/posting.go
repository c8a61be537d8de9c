package model

// Posting is one dataset row of job advertisement text
type Posting struct {
	RowID   int    `json:"row_id"`           // Stable row index within the dataset (0-based)
	JobID   string `json:"job_id,omitempty"` // Optional identifier carried over from the dataset
	RawText string `json:"raw_text"`
}

// ExtractionRule identifies which title extraction rule produced a title
type ExtractionRule string

const (
	RuleCountLocation ExtractionRule = "count_location" // "<count> <location> <TITLE> jobs"
	RuleCountTitle    ExtractionRule = "count_title"    // "<count> <TITLE> jobs"
	RuleCapitalSpan   ExtractionRule = "capital_span"   // Longest capitalized span of the first sentence
	RuleAddress       ExtractionRule = "address"        // Address-only input, no title
	RuleNone          ExtractionRule = "none"           // Nothing usable was found
	RuleError         ExtractionRule = "error"          // Row failed to process
)

// ExtractionResult is the best title candidate for a posting
type ExtractionResult struct {
	Title       string         `json:"title"`
	Confidence  float64        `json:"confidence"`
	MatchedRule ExtractionRule `json:"matched_rule"`
	NoiseHits   []string       `json:"noise_hits,omitempty"` // Denylist entries stripped from the candidate
}

// UnknownTitle is reported when no title could be extracted
const UnknownTitle = "Unknown"

// Precision describes how specifically a title matched its category
type Precision string

const (
	PrecisionExact   Precision = "exact"
	PrecisionGeneral Precision = "general"
	PrecisionOther   Precision = "other"
)

// CategoryOther is assigned when no taxonomy category matches
const CategoryOther = "OTHER"

// ClassificationResult is the category decision for one posting
type ClassificationResult struct {
	Category   string    `json:"category"`
	Precision  Precision `json:"precision"`
	Confidence float64   `json:"confidence"`
	Basis      string    `json:"basis,omitempty"`   // "title", "context" or empty when nothing matched
	Pattern    string    `json:"pattern,omitempty"` // Taxonomy pattern that decided the category
	Formula    string    `json:"formula,omitempty"` // Confidence formula that was applied
}

// ProcessedRow is the unit persisted to output and to checkpoints
type ProcessedRow struct {
	Posting
	Extraction     ExtractionResult     `json:"extraction"`
	Context        []string             `json:"context"`
	Classification ClassificationResult `json:"classification"`
	Error          string               `json:"error,omitempty"`       // Row-level failure note
	Reprocessed    *Revision            `json:"reprocessed,omitempty"` // Set by non-overwriting reprocess
}

// Revision holds reprocessed results stored beside the original ones
type Revision struct {
	Extraction      ExtractionResult     `json:"extraction"`
	Context         []string             `json:"context"`
	Classification  ClassificationResult `json:"classification"`
	TaxonomyVersion string               `json:"taxonomy_version,omitempty"`
}

// Failed reports whether the row degraded because of a processing error
func (r ProcessedRow) Failed() bool {
	return r.Error != ""
}
