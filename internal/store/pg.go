package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/CRM/internal/customer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint
// violation.
const uniqueViolation = "23505"

// PgStore is the PostgreSQL-backed customer store.
type PgStore struct {
	pool *pgxpool.Pool
}

// Row operations take a DBTX so they run against the pool directly or
// inside Apply's batch transaction.
var (
	_ DBTX = (*pgxpool.Pool)(nil)
	_ DBTX = (pgx.Tx)(nil)
)

// NewPgStore creates a store on top of an existing connection pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// ExistingKeys returns which of the candidate identity keys already
// exist in the store. The result is a point-in-time snapshot: a
// concurrent writer may insert a key after this query returns, which
// Apply resolves via the uniqueness constraint.
func (s *PgStore) ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return existing, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT code FROM customers WHERE code = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("query existing keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan existing key: %w", err)
		}
		existing[code] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("existing keys rows: %w", err)
	}

	return existing, nil
}

// Apply writes a reconciled batch inside one transaction. Each insert
// or update runs under its own savepoint: a constraint violation rolls
// back that row only and demotes it to Conflicted, the rest of the
// batch proceeds. Conflict decisions from reconciliation pass through
// untouched. Nothing outside the batch observes partially-applied
// state.
func (s *PgStore) Apply(ctx context.Context, batchID uuid.UUID, decisions []customer.Decision) (*BatchApplyResult, error) {
	result := &BatchApplyResult{Applied: make([]AppliedRow, 0, len(decisions))}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, d := range decisions {
		row := AppliedRow{Line: d.Record.Line, Code: d.Record.Code}

		if d.Kind == customer.DecideConflict {
			row.Status = customer.StatusConflicted
			row.Reason = string(d.Cause)
			result.Applied = append(result.Applied, row)
			continue
		}

		sp := fmt.Sprintf("row_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+sp); err != nil {
			return nil, fmt.Errorf("savepoint: %w", err)
		}

		applyErr := s.applyOne(ctx, tx, batchID, d)
		if applyErr != nil {
			if _, err := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); err != nil {
				return nil, fmt.Errorf("rollback savepoint: %w", err)
			}
			// A unique violation here means a concurrent batch inserted
			// the same key after our snapshot. The constraint is the
			// ground truth: demote the row rather than fail the batch.
			if isConflict(applyErr) {
				row.Status = customer.StatusConflicted
				row.Reason = string(customer.CauseStaleSnapshot)
				result.Applied = append(result.Applied, row)
				continue
			}
			return nil, fmt.Errorf("apply row %d: %w", d.Record.Line, applyErr)
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			return nil, fmt.Errorf("release savepoint: %w", err)
		}

		if d.Kind == customer.DecideUpdate {
			row.Status = customer.StatusUpdated
		} else {
			row.Status = customer.StatusInserted
		}
		result.Applied = append(result.Applied, row)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return result, nil
}

// errRowGone marks an update whose target row disappeared between the
// snapshot and apply time.
var errRowGone = errors.New("row no longer exists")

func (s *PgStore) applyOne(ctx context.Context, db DBTX, batchID uuid.UUID, d customer.Decision) error {
	rec := d.Record

	switch d.Kind {
	case customer.DecideInsert:
		_, err := db.Exec(ctx, `
			INSERT INTO customers (id, code, name, email, phone, joined, credit_limit, batch_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), rec.Code, rec.Name,
			nullString(rec.Email), nullString(rec.Phone),
			nullTime(rec.Joined), nullFloat(rec.CreditLimit, rec.HasCredit),
			batchID,
		)
		return err

	case customer.DecideUpdate:
		tag, err := db.Exec(ctx, `
			UPDATE customers
			SET name = $2, email = $3, phone = $4, joined = $5,
			    credit_limit = $6, batch_id = $7, updated_at = now()
			WHERE code = $1`,
			rec.Code, rec.Name,
			nullString(rec.Email), nullString(rec.Phone),
			nullTime(rec.Joined), nullFloat(rec.CreditLimit, rec.HasCredit),
			batchID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errRowGone
		}
		return nil
	}

	return fmt.Errorf("unexpected decision kind %v", d.Kind)
}

// isConflict reports whether an apply error should demote the row to
// Conflicted instead of failing the batch.
func isConflict(err error) bool {
	if errors.Is(err, errRowGone) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// RecordBatch stores a history entry for a completed import.
func (s *PgStore) RecordBatch(ctx context.Context, meta BatchMeta) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO import_batches
			(id, correlation_id, file_name, rows_total, inserted, updated, rejected, conflicted, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		meta.BatchID, nullString(meta.CorrelationID), nullString(meta.FileName),
		meta.Summary.Total, meta.Summary.Inserted, meta.Summary.Updated,
		meta.Summary.Rejected, meta.Summary.Conflicted,
		meta.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record batch: %w", err)
	}
	return nil
}

// ListBatches returns import history, most recent first.
func (s *PgStore) ListBatches(ctx context.Context, limit int) ([]ImportBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(correlation_id, ''), COALESCE(file_name, ''),
		       rows_total, inserted, updated, rejected, conflicted, duration_ms, created_at
		FROM import_batches
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []ImportBatch
	for rows.Next() {
		var b ImportBatch
		if err := rows.Scan(&b.ID, &b.CorrelationID, &b.FileName,
			&b.RowsTotal, &b.Inserted, &b.Updated, &b.Rejected, &b.Conflicted,
			&b.DurationMs, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ListCustomers returns a filtered, paged customer list and the total
// count matching the filters. Address filters join through the
// addresses table.
func (s *PgStore) ListCustomers(ctx context.Context, p ListParams) ([]Customer, int64, error) {
	base, args := listFilter(p)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT c.id) `+base, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, p.Offset)
	query := fmt.Sprintf(`SELECT DISTINCT c.id, c.code, c.name,
			COALESCE(c.email, ''), COALESCE(c.phone, ''),
			c.joined, c.credit_limit, c.created_at, c.updated_at
		%s ORDER BY %s LIMIT $%d OFFSET $%d`, base, orderClause(p), len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone,
			&c.Joined, &c.CreditLimit, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

// listFilter builds the shared FROM/WHERE clause for the customer list
// and its statistics. Address filters join through the addresses table.
func listFilter(p ListParams) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if p.Street != "" {
		add(`a.street ILIKE '%%' || $%d || '%%'`, p.Street)
	}
	if p.City != "" {
		add(`a.city ILIKE '%%' || $%d || '%%'`, p.City)
	}
	if p.Country != "" {
		add(`a.country ILIKE '%%' || $%d || '%%'`, p.Country)
	}
	if p.PostalCode != "" {
		add(`a.postal_code = $%d`, p.PostalCode)
	}

	base := `FROM customers c`
	if len(conds) > 0 {
		base += ` JOIN addresses a ON a.customer_id = c.id WHERE ` + strings.Join(conds, " AND ")
	}
	return base, args
}

// Statistics aggregates credit data over the customers matching the
// filters. The DISTINCT subquery keeps customers with several matching
// addresses from being counted twice.
func (s *PgStore) Statistics(ctx context.Context, p ListParams) (*CustomerStatistics, error) {
	base, args := listFilter(p)

	var st CustomerStatistics
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*), COUNT(t.credit_limit),
		       COALESCE(SUM(t.credit_limit), 0), COALESCE(AVG(t.credit_limit), 0),
		       MIN(t.credit_limit), MAX(t.credit_limit)
		FROM (SELECT DISTINCT c.id, c.credit_limit %s) t`, base), args...).
		Scan(&st.Customers, &st.WithCredit,
			&st.TotalCreditLimit, &st.AverageCreditLimit,
			&st.MinCreditLimit, &st.MaxCreditLimit)
	if err != nil {
		return nil, fmt.Errorf("customer statistics: %w", err)
	}
	return &st, nil
}

// sortColumns whitelists ORDER BY targets. Keys are the wire names
// accepted in ListParams.OrderBy; values are the real columns, so no
// caller input ever reaches the SQL text directly.
var sortColumns = map[string]string{
	"code":         "c.code",
	"name":         "c.name",
	"joined":       "c.joined",
	"credit_limit": "c.credit_limit",
	"created_at":   "c.created_at",
}

func orderClause(p ListParams) string {
	col, ok := sortColumns[strings.ToLower(p.OrderBy)]
	if !ok {
		col = "c.code"
	}
	dir := "ASC"
	if strings.EqualFold(p.OrderDir, "desc") {
		dir = "DESC"
	}
	return col + " " + dir
}

// GetCustomer returns one customer with its addresses.
func (s *PgStore) GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error) {
	var c Customer
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, name, COALESCE(email, ''), COALESCE(phone, ''),
		       joined, credit_limit, created_at, updated_at
		FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone,
			&c.Joined, &c.CreditLimit, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}

	c.Addresses, err = queryAddresses(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func queryAddresses(ctx context.Context, db DBTX, customerID uuid.UUID) ([]Address, error) {
	rows, err := db.Query(ctx, `
		SELECT id, customer_id, street, city, country, postal_code
		FROM addresses WHERE customer_id = $1 ORDER BY created_at`, customerID)
	if err != nil {
		return nil, fmt.Errorf("query addresses: %w", err)
	}
	defer rows.Close()

	var addresses []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.Street, &a.City, &a.Country, &a.PostalCode); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

// CreateCustomer inserts a customer and returns its ID.
// Returns a unique-violation error if the code is already taken.
func (s *PgStore) CreateCustomer(ctx context.Context, c Customer) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (id, code, name, email, phone, joined, credit_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, c.Code, c.Name, nullString(c.Email), nullString(c.Phone), c.Joined, c.CreditLimit)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create customer: %w", err)
	}
	return id, nil
}

// UpdateCustomer updates mutable customer fields.
func (s *PgStore) UpdateCustomer(ctx context.Context, id uuid.UUID, c Customer) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE customers
		SET name = $2, email = $3, phone = $4, joined = $5, credit_limit = $6, updated_at = now()
		WHERE id = $1`,
		id, c.Name, nullString(c.Email), nullString(c.Phone), c.Joined, c.CreditLimit)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCustomer removes a customer; addresses cascade.
func (s *PgStore) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAddress adds an address to an existing customer.
func (s *PgStore) CreateAddress(ctx context.Context, a Address) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO addresses (id, customer_id, street, city, country, postal_code)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, a.CustomerID, a.Street, a.City, a.Country, a.PostalCode)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create address: %w", err)
	}
	return id, nil
}

// UpdateAddress updates an address scoped to its customer.
func (s *PgStore) UpdateAddress(ctx context.Context, a Address) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE addresses
		SET street = $3, city = $4, country = $5, postal_code = $6
		WHERE id = $1 AND customer_id = $2`,
		a.ID, a.CustomerID, a.Street, a.City, a.Country, a.PostalCode)
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAddress removes an address scoped to its customer.
func (s *PgStore) DeleteAddress(ctx context.Context, customerID, addressID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM addresses WHERE id = $1 AND customer_id = $2`, addressID, customerID)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation. Used by handlers to map to 409.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullFloat(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
