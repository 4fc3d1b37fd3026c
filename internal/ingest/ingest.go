// Package ingest orchestrates one customer import batch end to end:
// read the source file, normalize rows, reconcile against stored keys,
// apply transactionally, and assemble the per-row outcome report.
//
// The pipeline is linear (reading, normalizing, reconciling, applying,
// reported) with no backward transitions. Fatal failures can only occur
// while reading, before any persistence side effect; row-level failures
// are captured into the report and never abort the batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/JonMunkholm/CRM/internal/customer"
	"github.com/JonMunkholm/CRM/internal/logging"
	"github.com/JonMunkholm/CRM/internal/store"
	"github.com/google/uuid"
)

// Sentinel causes of fatal ingestion failures.
var (
	ErrEmptyFile     = errors.New("file contains no rows")
	ErrMissingHeader = errors.New("header row not found")
	ErrFileTooLarge  = errors.New("file exceeds size limit")
)

// FatalError aborts a whole batch before any row is applied. It is the
// single failure signal distinct from a completed report; a report with
// every row rejected is still a success.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("import failed: %s: %v", e.Reason, e.Err)
	}
	return "import failed: " + e.Reason
}

func (e *FatalError) Unwrap() error { return e.Err }

// Gateway is the persistence surface the orchestrator depends on.
// *store.PgStore satisfies it; tests substitute a fake.
type Gateway interface {
	ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error)
	Apply(ctx context.Context, batchID uuid.UUID, decisions []customer.Decision) (*store.BatchApplyResult, error)
	RecordBatch(ctx context.Context, meta store.BatchMeta) error
}

// Params describes one import request.
type Params struct {
	FileName      string
	CorrelationID string // opaque per-request identifier, passed through to the report
	Data          []byte
}

// Service drives import batches against a Gateway.
type Service struct {
	gateway     Gateway
	limiter     *Limiter
	maxFileSize int64
	timeout     time.Duration
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	MaxFileSize   int64
	MaxConcurrent int
	MaxWait       time.Duration
	Timeout       time.Duration
}

// NewService creates an import service on top of a persistence gateway.
func NewService(gateway Gateway, opts Options) *Service {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 100 * 1024 * 1024
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	return &Service{
		gateway:     gateway,
		limiter:     NewLimiter(opts.MaxConcurrent, opts.MaxWait),
		maxFileSize: opts.MaxFileSize,
		timeout:     opts.Timeout,
	}
}

// Ingest runs one batch to completion and returns its report.
//
// A *FatalError means nothing was persisted. Any other error is an
// infrastructure failure (the batch transaction rolled back as a unit).
// Otherwise the report accounts for every non-empty source row exactly
// once, in source order.
func (s *Service) Ingest(ctx context.Context, p Params) (*customer.BatchOutcomeReport, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	batchID := uuid.New()
	log := logging.FromContext(ctx).With("batch_id", batchID.String(), "file", p.FileName)

	// Reading
	if int64(len(p.Data)) > s.maxFileSize {
		return nil, &FatalError{Reason: "file too large", Err: ErrFileTooLarge}
	}
	rows, err := readRows(p.Data)
	if err != nil {
		log.Warn("import aborted while reading", "error", err)
		return nil, err
	}
	log.Info("file read", "rows", len(rows))

	// Normalizing
	var (
		records  []customer.CustomerRecord
		rejected []customer.RejectedRow
	)
	for _, row := range rows {
		rec, rej := customer.Normalize(row)
		if rej != nil {
			rejected = append(rejected, *rej)
			continue
		}
		records = append(records, rec)
	}
	log.Debug("rows normalized", "valid", len(records), "rejected", len(rejected))

	// Reconciling
	existing, err := s.gateway.ExistingKeys(ctx, customer.Keys(records))
	if err != nil {
		return nil, fmt.Errorf("snapshot existing keys: %w", err)
	}
	decisions := customer.Reconcile(records, existing)

	// Applying
	var applied *store.BatchApplyResult
	if len(decisions) > 0 {
		applied, err = s.gateway.Apply(ctx, batchID, decisions)
		if err != nil {
			return nil, fmt.Errorf("apply batch: %w", err)
		}
	}

	// Reported
	report := s.buildReport(batchID, p, rejected, applied, time.Since(start))

	if err := s.gateway.RecordBatch(ctx, store.BatchMeta{
		BatchID:       batchID,
		CorrelationID: p.CorrelationID,
		FileName:      p.FileName,
		Summary:       report.Summary,
		Duration:      report.Duration,
	}); err != nil {
		// History is best-effort; the batch itself already committed.
		log.Warn("record batch history", "error", err)
	}

	log.Info("import complete",
		"inserted", report.Summary.Inserted,
		"updated", report.Summary.Updated,
		"rejected", report.Summary.Rejected,
		"conflicted", report.Summary.Conflicted,
		"duration_ms", report.DurationMs,
	)
	return report, nil
}

// buildReport merges normalization rejections with apply results,
// ordered by source line.
func (s *Service) buildReport(batchID uuid.UUID, p Params, rejected []customer.RejectedRow, applied *store.BatchApplyResult, elapsed time.Duration) *customer.BatchOutcomeReport {
	report := &customer.BatchOutcomeReport{
		BatchID:       batchID.String(),
		CorrelationID: p.CorrelationID,
		FileName:      p.FileName,
		Duration:      elapsed,
		DurationMs:    elapsed.Milliseconds(),
	}

	for _, rej := range rejected {
		report.Add(customer.RowOutcome{
			Line:   rej.Row.Line,
			Code:   rej.Row.Cell(customer.IdentityColumn),
			Status: customer.StatusRejected,
			Reason: rej.Error(),
		})
	}
	if applied != nil {
		for _, row := range applied.Applied {
			report.Add(customer.RowOutcome{
				Line:   row.Line,
				Code:   row.Code,
				Status: row.Status,
				Reason: row.Reason,
			})
		}
	}

	sort.SliceStable(report.Rows, func(i, j int) bool {
		return report.Rows[i].Line < report.Rows[j].Line
	})
	return report
}

// WaitForDrain blocks until all in-flight imports finish or ctx expires.
// Used during graceful shutdown.
func (s *Service) WaitForDrain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// Active returns the number of imports currently in flight.
func (s *Service) Active() int {
	return s.limiter.Active()
}
