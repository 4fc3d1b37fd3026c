package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/JonMunkholm/CRM/internal/customer"
	"github.com/JonMunkholm/CRM/internal/store"
	"github.com/google/uuid"
)

// fakeGateway applies decisions in memory. Inserts and updates succeed;
// decisions already marked as conflicts pass through, mirroring the
// real store's behavior.
type fakeGateway struct {
	existing map[string]bool

	existingCalls int
	applyCalls    int
	applied       []customer.Decision
	batches       []store.BatchMeta

	applyErr error
}

func (f *fakeGateway) ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	f.existingCalls++
	out := make(map[string]bool)
	for _, k := range keys {
		if f.existing[k] {
			out[k] = true
		}
	}
	return out, nil
}

func (f *fakeGateway) Apply(ctx context.Context, batchID uuid.UUID, decisions []customer.Decision) (*store.BatchApplyResult, error) {
	f.applyCalls++
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.applied = append(f.applied, decisions...)

	result := &store.BatchApplyResult{}
	for _, d := range decisions {
		row := store.AppliedRow{Line: d.Record.Line, Code: d.Record.Code}
		switch d.Kind {
		case customer.DecideInsert:
			row.Status = customer.StatusInserted
		case customer.DecideUpdate:
			row.Status = customer.StatusUpdated
		case customer.DecideConflict:
			row.Status = customer.StatusConflicted
			row.Reason = string(d.Cause)
		}
		result.Applied = append(result.Applied, row)
	}
	return result, nil
}

func (f *fakeGateway) RecordBatch(ctx context.Context, meta store.BatchMeta) error {
	f.batches = append(f.batches, meta)
	return nil
}

func newTestService(gw *fakeGateway) *Service {
	return NewService(gw, Options{})
}

func TestIngest_FullBatch(t *testing.T) {
	gw := &fakeGateway{existing: map[string]bool{"BETA-002": true}}
	svc := newTestService(gw)

	data := []byte(header +
		"ACME-001,Acme GmbH,billing@acme.example,,,\n" +
		"BETA-002,Beta AB,ap@beta.example,,,\n" +
		"ACME-001,Acme Again,dup@acme.example,,,\n")

	report, err := svc.Ingest(context.Background(), Params{FileName: "customers.csv", Data: data})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	want := customer.Summary{Total: 3, Inserted: 1, Updated: 1, Conflicted: 1}
	if report.Summary != want {
		t.Errorf("Summary = %+v, want %+v", report.Summary, want)
	}
	if report.BatchID == "" {
		t.Error("BatchID is empty")
	}
	if gw.existingCalls != 1 || gw.applyCalls != 1 {
		t.Errorf("gateway calls = %d existing, %d apply; want 1 each", gw.existingCalls, gw.applyCalls)
	}
	if len(gw.batches) != 1 {
		t.Fatalf("got %d recorded batches, want 1", len(gw.batches))
	}
	if gw.batches[0].FileName != "customers.csv" {
		t.Errorf("recorded file name = %q", gw.batches[0].FileName)
	}
}

func TestIngest_PartialFailure(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)

	// Row at line 4 has no email and must not abort the rest.
	data := []byte(header +
		"A-1,One,one@x.example,,,\n" +
		"A-2,Two,two@x.example,,,\n" +
		"A-3,Three,,,,\n" +
		"A-4,Four,four@x.example,,,\n" +
		"A-5,Five,five@x.example,,,\n")

	report, err := svc.Ingest(context.Background(), Params{Data: data})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	want := customer.Summary{Total: 5, Inserted: 4, Rejected: 1}
	if report.Summary != want {
		t.Errorf("Summary = %+v, want %+v", report.Summary, want)
	}
	if len(gw.applied) != 4 {
		t.Errorf("applied %d decisions, want 4", len(gw.applied))
	}

	// Report is ordered by source line, rejection in place.
	for i, row := range report.Rows {
		if row.Line != i+2 {
			t.Errorf("Rows[%d].Line = %d, want %d", i, row.Line, i+2)
		}
	}
	if report.Rows[2].Status != customer.StatusRejected {
		t.Errorf("Rows[2].Status = %q, want rejected", report.Rows[2].Status)
	}
	if report.Rows[2].Reason == "" {
		t.Error("rejected row has no reason")
	}
}

func TestIngest_AllRowsExist(t *testing.T) {
	gw := &fakeGateway{existing: map[string]bool{"A-1": true, "A-2": true}}
	svc := newTestService(gw)

	data := []byte(header +
		"A-1,One,one@x.example,,,\n" +
		"A-2,Two,two@x.example,,,\n")

	report, err := svc.Ingest(context.Background(), Params{Data: data})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	want := customer.Summary{Total: 2, Updated: 2}
	if report.Summary != want {
		t.Errorf("Summary = %+v, want %+v", report.Summary, want)
	}
}

func TestIngest_FatalBeforePersistence(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty file", data: nil},
		{name: "missing header", data: []byte("a,b\n1,2\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{}
			svc := newTestService(gw)

			report, err := svc.Ingest(context.Background(), Params{Data: tt.data})
			var fatal *FatalError
			if !errors.As(err, &fatal) {
				t.Fatalf("err = %v, want *FatalError", err)
			}
			if report != nil {
				t.Error("got a report alongside a fatal error")
			}
			if gw.applyCalls != 0 {
				t.Errorf("Apply called %d times before fatal exit", gw.applyCalls)
			}
			if len(gw.batches) != 0 {
				t.Error("batch history recorded for a fatal failure")
			}
		})
	}
}

func TestIngest_FileTooLarge(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewService(gw, Options{MaxFileSize: 10})

	_, err := svc.Ingest(context.Background(), Params{Data: make([]byte, 11)})
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("err = %v, want ErrFileTooLarge", err)
	}
	if gw.existingCalls != 0 {
		t.Error("gateway touched for an oversized file")
	}
}

func TestIngest_AllRejectedIsNotFatal(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)

	data := []byte(header +
		",NoCode,x@x.example,,,\n" +
		",AlsoNoCode,y@y.example,,,\n")

	report, err := svc.Ingest(context.Background(), Params{Data: data})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	want := customer.Summary{Total: 2, Rejected: 2}
	if report.Summary != want {
		t.Errorf("Summary = %+v, want %+v", report.Summary, want)
	}
	if gw.applyCalls != 0 {
		t.Error("Apply called with no valid decisions")
	}
}

func TestIngest_ApplyErrorPropagates(t *testing.T) {
	gw := &fakeGateway{applyErr: errors.New("connection reset")}
	svc := newTestService(gw)

	data := []byte(header + "A-1,One,one@x.example,,,\n")

	_, err := svc.Ingest(context.Background(), Params{Data: data})
	if err == nil {
		t.Fatal("expected error")
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		t.Errorf("infrastructure failure reported as FatalError: %v", err)
	}
}
