package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "rule_versions_scheme_id_version_key"}
	if !isUniqueViolation(fmt.Errorf("save version: %w", unique)) {
		t.Fatalf("23505 should classify as a unique violation")
	}

	// A broken connection during publish must surface its real cause, not a
	// retryable conflict.
	if isUniqueViolation(&pgconn.PgError{Code: "42P01"}) {
		t.Fatalf("undefined table must not classify as unique violation")
	}
	if isUniqueViolation(errors.New("dial tcp 10.0.0.1:5432: connection refused")) {
		t.Fatalf("transport errors must not classify as unique violation")
	}
}
