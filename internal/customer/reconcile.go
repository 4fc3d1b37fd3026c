package customer

// reconcile.go decides, for each normalized record in a batch, whether
// it is an insert, an update, or a conflict against existing stored
// state. The decision is a pure function of the records and a key
// snapshot; it never touches the store, so it can be unit tested
// without a database.

// DecisionKind tags a record with its reconciliation outcome.
type DecisionKind int

const (
	DecideInsert DecisionKind = iota
	DecideUpdate
	DecideConflict
)

// String returns the lowercase name of the decision kind.
func (k DecisionKind) String() string {
	switch k {
	case DecideInsert:
		return "insert"
	case DecideUpdate:
		return "update"
	case DecideConflict:
		return "conflict"
	}
	return "unknown"
}

// ConflictCause explains why a record was marked as a conflict.
type ConflictCause string

const (
	// CauseDuplicateInBatch marks the second and later occurrences of an
	// identity key within the same batch. First occurrence wins.
	CauseDuplicateInBatch ConflictCause = "duplicate-in-batch"

	// CauseStaleSnapshot marks a row whose insert or update lost a race
	// against a concurrent writer. Assigned by the store at apply time,
	// never by Reconcile.
	CauseStaleSnapshot ConflictCause = "stale-snapshot"
)

// Decision is a reconciled record. Exactly one decision is produced per
// input record, in input order.
type Decision struct {
	Record CustomerRecord
	Kind   DecisionKind
	Cause  ConflictCause // set only when Kind is DecideConflict
}

// Reconcile maps each record to a Decision against a snapshot of
// existing identity keys. Duplicate keys within the batch resolve
// first-occurrence-wins: the first becomes Insert or Update, the rest
// become Conflict(duplicate-in-batch). Output order matches input
// order, so reports are reproducible.
//
// The snapshot may be stale by the time decisions are applied; the
// store's uniqueness constraint is the authoritative arbiter and will
// demote racing rows to conflicts.
func Reconcile(records []CustomerRecord, existing map[string]bool) []Decision {
	decisions := make([]Decision, 0, len(records))
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		switch {
		case seen[rec.Code]:
			decisions = append(decisions, Decision{
				Record: rec,
				Kind:   DecideConflict,
				Cause:  CauseDuplicateInBatch,
			})
		case existing[rec.Code]:
			seen[rec.Code] = true
			decisions = append(decisions, Decision{Record: rec, Kind: DecideUpdate})
		default:
			seen[rec.Code] = true
			decisions = append(decisions, Decision{Record: rec, Kind: DecideInsert})
		}
	}

	return decisions
}

// Keys returns the distinct identity keys of a batch, in first-seen
// order. Used to scope the store's existing-key snapshot query.
func Keys(records []CustomerRecord) []string {
	seen := make(map[string]bool, len(records))
	keys := make([]string, 0, len(records))
	for _, rec := range records {
		if !seen[rec.Code] {
			seen[rec.Code] = true
			keys = append(keys, rec.Code)
		}
	}
	return keys
}
