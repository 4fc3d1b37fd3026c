package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/CRM/internal/customer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDBTX records Exec calls so row operations can be exercised
// without a database.
type fakeDBTX struct {
	execSQL []string
	tag     pgconn.CommandTag
	execErr error
}

func (f *fakeDBTX) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return f.tag, nil
}

func (f *fakeDBTX) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDBTX) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

func TestApplyOne_AgainstDBTX(t *testing.T) {
	s := &PgStore{}
	rec := customer.CustomerRecord{Line: 2, Code: "ACME-001", Name: "Acme GmbH"}

	t.Run("insert", func(t *testing.T) {
		db := &fakeDBTX{tag: pgconn.NewCommandTag("INSERT 0 1")}
		err := s.applyOne(context.Background(), db, uuid.New(), customer.Decision{Record: rec, Kind: customer.DecideInsert})
		if err != nil {
			t.Fatalf("applyOne: %v", err)
		}
		if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "INSERT INTO customers") {
			t.Errorf("exec calls = %v", db.execSQL)
		}
	})

	t.Run("update hits existing row", func(t *testing.T) {
		db := &fakeDBTX{tag: pgconn.NewCommandTag("UPDATE 1")}
		err := s.applyOne(context.Background(), db, uuid.New(), customer.Decision{Record: rec, Kind: customer.DecideUpdate})
		if err != nil {
			t.Fatalf("applyOne: %v", err)
		}
	})

	t.Run("update target vanished", func(t *testing.T) {
		db := &fakeDBTX{tag: pgconn.NewCommandTag("UPDATE 0")}
		err := s.applyOne(context.Background(), db, uuid.New(), customer.Decision{Record: rec, Kind: customer.DecideUpdate})
		if !errors.Is(err, errRowGone) {
			t.Fatalf("err = %v, want errRowGone", err)
		}
	})
}

func TestIsUniqueViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: uniqueViolation, ConstraintName: "customers_code_key"}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "direct pg error", err: unique, want: true},
		{name: "wrapped pg error", err: fmt.Errorf("create customer: %w", unique), want: true},
		{name: "other pg error", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err); got != tt.want {
				t.Errorf("IsUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsConflict(t *testing.T) {
	if !isConflict(errRowGone) {
		t.Error("errRowGone should demote the row")
	}
	if !isConflict(fmt.Errorf("apply: %w", &pgconn.PgError{Code: uniqueViolation})) {
		t.Error("wrapped unique violation should demote the row")
	}
	if isConflict(errors.New("connection reset")) {
		t.Error("infrastructure error must fail the batch")
	}
}

func TestOrderClause(t *testing.T) {
	tests := []struct {
		name string
		p    ListParams
		want string
	}{
		{name: "default", p: ListParams{}, want: "c.code ASC"},
		{name: "by name descending", p: ListParams{OrderBy: "name", OrderDir: "desc"}, want: "c.name DESC"},
		{name: "case insensitive", p: ListParams{OrderBy: "Joined", OrderDir: "DESC"}, want: "c.joined DESC"},
		{name: "by credit limit", p: ListParams{OrderBy: "credit_limit"}, want: "c.credit_limit ASC"},
		// Unknown columns and injection attempts fall back to the default.
		{name: "unknown column", p: ListParams{OrderBy: "password"}, want: "c.code ASC"},
		{name: "injection attempt", p: ListParams{OrderBy: "code; DROP TABLE customers"}, want: "c.code ASC"},
		{name: "bad direction", p: ListParams{OrderBy: "code", OrderDir: "sideways"}, want: "c.code ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := orderClause(tt.p); got != tt.want {
				t.Errorf("orderClause(%+v) = %q, want %q", tt.p, got, tt.want)
			}
		})
	}
}

func TestNullHelpers(t *testing.T) {
	if nullString("") != nil {
		t.Error("nullString(\"\") != nil")
	}
	if got := nullString("x"); got == nil || *got != "x" {
		t.Errorf("nullString(x) = %v", got)
	}

	if nullTime(time.Time{}) != nil {
		t.Error("nullTime(zero) != nil")
	}
	now := time.Now()
	if got := nullTime(now); got == nil || !got.Equal(now) {
		t.Errorf("nullTime(now) = %v", got)
	}

	if nullFloat(1.5, false) != nil {
		t.Error("nullFloat(_, false) != nil")
	}
	if got := nullFloat(1.5, true); got == nil || *got != 1.5 {
		t.Errorf("nullFloat(1.5, true) = %v", got)
	}
}
