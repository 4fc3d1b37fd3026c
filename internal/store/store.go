// Package store is the repository layer: all SQL lives here, behind a
// small create/update/query surface. Callers above it never see pgx
// row types, only domain values.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/CRM/internal/customer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so queries can
// run inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Customer is the stored customer entity. Code is unique across the
// store (enforced by a uniqueness constraint).
type Customer struct {
	ID          uuid.UUID  `json:"id"`
	Code        string     `json:"customerCode"`
	Name        string     `json:"name"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Joined      *time.Time `json:"joined,omitempty"`
	CreditLimit *float64   `json:"creditLimit,omitempty"`
	Addresses   []Address  `json:"addresses,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Address is a customer address row.
type Address struct {
	ID         uuid.UUID `json:"id"`
	CustomerID uuid.UUID `json:"customerId"`
	Street     string    `json:"street"`
	City       string    `json:"city"`
	Country    string    `json:"country"`
	PostalCode string    `json:"postalCode"`
}

// ListParams filters, sorts, and pages the customer list. All filters
// are optional and combine with AND. OrderBy must be one of the
// whitelisted column names; anything else falls back to code ascending.
type ListParams struct {
	Street     string
	City       string
	Country    string
	PostalCode string
	OrderBy    string
	OrderDir   string
	Limit      int
	Offset     int
}

// CustomerStatistics are aggregates over every customer matching a
// filter, computed storage-side so pagination does not skew them.
// Min and max are nil when no matching customer has a credit limit.
type CustomerStatistics struct {
	Customers          int64    `json:"customers"`
	WithCredit         int64    `json:"withCredit"`
	TotalCreditLimit   float64  `json:"totalCreditLimit"`
	AverageCreditLimit float64  `json:"averageCreditLimit"`
	MinCreditLimit     *float64 `json:"minCreditLimit,omitempty"`
	MaxCreditLimit     *float64 `json:"maxCreditLimit,omitempty"`
}

// AppliedRow is the per-decision result of applying a batch.
type AppliedRow struct {
	Line   int
	Code   string
	Status customer.RowStatus
	Reason string
}

// BatchApplyResult is the outcome of one transactional batch apply,
// in decision order.
type BatchApplyResult struct {
	Applied []AppliedRow
}

// BatchMeta records one completed import batch for history.
type BatchMeta struct {
	BatchID       uuid.UUID
	CorrelationID string
	FileName      string
	Summary       customer.Summary
	Duration      time.Duration
}

// ImportBatch is a stored import history entry.
type ImportBatch struct {
	ID            uuid.UUID `json:"id"`
	CorrelationID string    `json:"correlationId,omitempty"`
	FileName      string    `json:"fileName,omitempty"`
	RowsTotal     int       `json:"rowsTotal"`
	Inserted      int       `json:"inserted"`
	Updated       int       `json:"updated"`
	Rejected      int       `json:"rejected"`
	Conflicted    int       `json:"conflicted"`
	DurationMs    int64     `json:"durationMs"`
	CreatedAt     time.Time `json:"createdAt"`
}
