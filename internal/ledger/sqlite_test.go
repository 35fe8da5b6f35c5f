package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"donations/internal/core"
)

func newTestSQLiteStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "donations.db"), opts...)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	exerciseLedger(t, newTestSQLiteStore(t))
}

func TestSQLiteStoreMalformedRow(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		policy  LoadPolicy
		wantErr bool
	}{
		{Lenient, false},
		{Strict, true},
	} {
		s := newTestSQLiteStore(t, WithLoadPolicy(tc.policy))
		if _, err := s.db.Exec(`INSERT INTO donations (donor_name, amount) VALUES ('Bad', 'abc'), ('Good', '12.5')`); err != nil {
			t.Fatalf("seed rows: %v", err)
		}

		got, err := Collect(s.All(ctx))
		if tc.wantErr {
			var rerr *RecordError
			if !errors.As(err, &rerr) || !errors.Is(err, core.ErrMalformedRecord) {
				t.Fatalf("%s: expected RecordError, got %v", tc.policy, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.policy, err)
		}
		if len(got) != 1 || got[0].Name() != "Good" {
			t.Fatalf("%s: expected only the valid row, got %v", tc.policy, got)
		}
	}
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "donations.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.Append(ctx, mustDonation(t, "Alice", "10", testTime)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	sum, err := s.Sum(ctx)
	if err != nil || sum.String() != "10" {
		t.Fatalf("expected sum 10 after reopen, got %s (%v)", sum, err)
	}
}
