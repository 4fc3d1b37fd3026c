// Package customer provides the domain core for customer bulk import:
// row normalization, batch reconciliation, and the outcome report.
// This package has no database or HTTP dependencies.
package customer

import "time"

// IdentityColumn is the spreadsheet column that carries the business key.
const IdentityColumn = "customer_code"

// RawRow is one spreadsheet row as read from the source file:
// column name -> raw cell value. Produced by the file reader, consumed
// once by Normalize.
type RawRow struct {
	Line  int // 1-based line number in the source file
	Cells map[string]string
}

// Cell returns the trimmed value for a column, or "" if absent.
func (r RawRow) Cell(name string) string {
	return CleanCell(r.Cells[name])
}

// CustomerRecord is a validated customer row ready for reconciliation.
// Code is the identity key and is never empty.
type CustomerRecord struct {
	Line        int
	Code        string
	Name        string
	Email       string
	Phone       string
	Joined      time.Time // zero if the source column was empty
	CreditLimit float64
	HasCredit   bool // true if credit_limit was present in the source
}

// RejectReason classifies why a row was rejected during normalization.
type RejectReason string

const (
	ReasonMissingIdentity RejectReason = "missing-identity"
	ReasonMissingField    RejectReason = "missing-field"
	ReasonBadDate         RejectReason = "bad-date"
	ReasonBadNumber       RejectReason = "bad-number"
)

// RejectedRow is a row that failed normalization. Terminal: reported,
// never persisted.
type RejectedRow struct {
	Row    RawRow
	Field  string
	Reason RejectReason
	Detail string
}

// Error renders the rejection for the outcome report.
func (r RejectedRow) Error() string {
	if r.Detail != "" {
		return string(r.Reason) + ": " + r.Detail
	}
	return string(r.Reason) + ": " + r.Field
}
