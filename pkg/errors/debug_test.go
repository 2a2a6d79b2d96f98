package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestLogFieldsPgx(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key", ConstraintName: "orders_business_number_key"}
	err := Wrap(CodeConflict, fmt.Errorf("insert order: %w", pgErr), "order number taken")

	fields := LogFields(err)
	if fields["error_code"] != string(CodeConflict) {
		t.Fatalf("expected conflict code, got %v", fields["error_code"])
	}
	if fields["pg_code"] != "23505" || fields["pg_constraint"] != "orders_business_number_key" {
		t.Fatalf("expected pg diagnostics, got %v", fields)
	}
	if _, ok := fields["pg_table"]; ok {
		t.Fatal("empty diagnostics should be omitted")
	}
	chain, ok := fields["error_chain"].([]string)
	if !ok || len(chain) < 2 {
		t.Fatalf("expected unwrap chain, got %v", fields["error_chain"])
	}
}

func TestLogFieldsLibPQ(t *testing.T) {
	fields := LogFields(fmt.Errorf("query: %w", &pq.Error{Code: "40001", Message: "could not serialize"}))
	if fields["pg_code"] != "40001" || fields["pg_message"] != "could not serialize" {
		t.Fatalf("expected lib/pq diagnostics, got %v", fields)
	}
	if _, ok := fields["error_code"]; ok {
		t.Fatal("untyped errors carry no code")
	}
}

func TestLogFieldsPlain(t *testing.T) {
	if LogFields(nil) != nil {
		t.Fatal("nil error has no fields")
	}
	fields := LogFields(stdErrors.New("boom"))
	if len(fields) != 1 || fields["error"] != "boom" {
		t.Fatalf("expected only the message, got %v", fields)
	}
}
