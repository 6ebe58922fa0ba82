package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"serialization", &pq.Error{Code: "40001"}, ErrorClassSerialization},
		{"deadlock", &pq.Error{Code: "40P01"}, ErrorClassDeadlock},
		{"lock not available", &pq.Error{Code: "55P03"}, ErrorClassTransient},
		{"unique violation", &pq.Error{Code: "23505"}, ErrorClassPermanent},
		{"wrapped serialization", fmt.Errorf("commit transaction: %w", &pq.Error{Code: "40001"}), ErrorClassSerialization},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent},
		{"sentinel", ErrOrderNotFound, ErrorClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "discounts_product_id_key"})

	if !IsUniqueViolation(err, "") {
		t.Error("Expected unique violation for any constraint")
	}
	if !IsUniqueViolation(err, "discounts_product_id_key") {
		t.Error("Expected unique violation for named constraint")
	}
	if IsUniqueViolation(err, "other_key") {
		t.Error("Did not expect a match on a different constraint")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}, "") {
		t.Error("Foreign key violation is not a unique violation")
	}
}

type failingBeginner struct {
	calls int
}

func (f *failingBeginner) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	db := &failingBeginner{}

	err := WithRetry(context.Background(), db, DefaultTxOptions(), func(tx *sql.Tx) error {
		t.Fatal("fn must not run without a transaction")
		return nil
	})
	if err == nil {
		t.Fatal("Expected begin error")
	}
	if db.calls != 1 {
		t.Errorf("Expected a single attempt, got %d", db.calls)
	}
}

func TestWithRetryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	db := &failingBeginner{}
	err := WithRetry(ctx, db, DefaultTxOptions(), func(tx *sql.Tx) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if db.calls != 0 {
		t.Errorf("Expected no attempts, got %d", db.calls)
	}
}
