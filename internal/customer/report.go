package customer

import "time"

// RowStatus is the user-facing outcome of a single row.
type RowStatus string

const (
	StatusInserted   RowStatus = "inserted"
	StatusUpdated    RowStatus = "updated"
	StatusRejected   RowStatus = "rejected"
	StatusConflicted RowStatus = "conflicted"
)

// RowOutcome is one entry of the batch report, keyed by the original
// source line for user-facing traceability.
type RowOutcome struct {
	Line   int       `json:"line"`
	Code   string    `json:"customerCode,omitempty"`
	Status RowStatus `json:"status"`
	Reason string    `json:"reason,omitempty"`
}

// Summary holds the aggregate counts of a batch.
type Summary struct {
	Total      int `json:"total"`
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	Rejected   int `json:"rejected"`
	Conflicted int `json:"conflicted"`
}

// BatchOutcomeReport is the final result of one ingestion batch.
// Rows are ordered by source line. Immutable once returned.
type BatchOutcomeReport struct {
	BatchID       string        `json:"batchId"`
	CorrelationID string        `json:"correlationId,omitempty"`
	FileName      string        `json:"fileName,omitempty"`
	Rows          []RowOutcome  `json:"rows"`
	Summary       Summary       `json:"summary"`
	Duration      time.Duration `json:"-"`
	DurationMs    int64         `json:"durationMs"`
}

// Add appends a row outcome and updates the summary counts.
func (r *BatchOutcomeReport) Add(o RowOutcome) {
	r.Rows = append(r.Rows, o)
	r.Summary.Total++
	switch o.Status {
	case StatusInserted:
		r.Summary.Inserted++
	case StatusUpdated:
		r.Summary.Updated++
	case StatusRejected:
		r.Summary.Rejected++
	case StatusConflicted:
		r.Summary.Conflicted++
	}
}
