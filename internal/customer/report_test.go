package customer

import "testing"

func TestBatchOutcomeReport_Add(t *testing.T) {
	var r BatchOutcomeReport

	r.Add(RowOutcome{Line: 2, Code: "A", Status: StatusInserted})
	r.Add(RowOutcome{Line: 3, Code: "B", Status: StatusUpdated})
	r.Add(RowOutcome{Line: 4, Status: StatusRejected, Reason: "missing-field: email"})
	r.Add(RowOutcome{Line: 5, Code: "A", Status: StatusConflicted})
	r.Add(RowOutcome{Line: 6, Code: "C", Status: StatusInserted})

	if len(r.Rows) != 5 {
		t.Fatalf("len(Rows) = %d, want 5", len(r.Rows))
	}

	want := Summary{Total: 5, Inserted: 2, Updated: 1, Rejected: 1, Conflicted: 1}
	if r.Summary != want {
		t.Errorf("Summary = %+v, want %+v", r.Summary, want)
	}
}
