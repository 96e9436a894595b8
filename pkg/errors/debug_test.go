package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestDumpCapturesPgxFields(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "transactions_reference_key",
		TableName:      "transactions",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeConflict, fmt.Errorf("insert transaction: %w", pgErr), "duplicate reference")

	d := Dump(err)
	assert.Equal(t, CodeConflict, d.Code)
	assert.Equal(t, "23505", d.PGCode)
	assert.Equal(t, "transactions_reference_key", d.PGConstraint)
	assert.Equal(t, "transactions", d.PGTable)
	assert.False(t, d.Transient)
	assert.GreaterOrEqual(t, len(d.Chain), 2)
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"pgx deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"pgx serialization", fmt.Errorf("debit wallet: %w", &pgconn.PgError{Code: "40001"}), true},
		{"pq lock timeout", &pq.Error{Code: "55P03"}, true},
		{"pq unique", &pq.Error{Code: "23505"}, false},
		{"sqlite busy", stdErrors.New("database is locked"), true},
		{"plain", stdErrors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestDumpClassifiesConstraintViolations(t *testing.T) {
	d := Dump(fmt.Errorf("debit wallet: %w", &pq.Error{Code: "23514", Constraint: "chk_wallets_balance_non_negative"}))
	assert.Equal(t, "check_violation", d.PGClass)
	assert.Equal(t, "chk_wallets_balance_non_negative", d.PGConstraint)
	assert.Empty(t, d.Code)
	assert.False(t, d.Transient)
}

func TestDumpFieldsOmitsEmptyValues(t *testing.T) {
	fields := Dump(New(CodeNotFound, "order not found")).Fields()
	assert.Equal(t, "NOT_FOUND: order not found", fields["error_message"])
	assert.NotContains(t, fields, "pg_code")
	assert.NotContains(t, fields, "transient")
	assert.NotContains(t, fields, "error_chain")

	fields = Dump(&pgconn.PgError{Code: "40P01", Message: "deadlock detected"}).Fields()
	assert.Equal(t, "deadlock", fields["pg_class"])
	assert.Equal(t, true, fields["transient"])
}
