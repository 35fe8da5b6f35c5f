package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"donations/internal/core"
)

func mustDonation(t *testing.T, name, amount string, at time.Time) core.Donation {
	t.Helper()
	d, err := core.NewDonation(name, decimal.RequireFromString(amount), at)
	if err != nil {
		t.Fatalf("NewDonation(%q, %s): %v", name, amount, err)
	}
	return d
}

// exerciseLedger runs the behaviour every store must share.
func exerciseLedger(t *testing.T, l Ledger) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 11, 3, 14, 5, 0, 0, time.Local)

	got, err := Collect(l.All(ctx))
	if err != nil {
		t.Fatalf("All on empty ledger: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty ledger, got %d", len(got))
	}

	want := []core.Donation{
		mustDonation(t, "Alice", "100.50", base),
		mustDonation(t, "Bob", "25", base.Add(time.Minute)),
		mustDonation(t, "", "0.10", base.Add(2*time.Minute)),
	}
	for _, d := range want {
		if err := l.Append(ctx, d); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	// Twice, to check the sequence is restartable.
	for pass := 0; pass < 2; pass++ {
		got, err = Collect(l.All(ctx))
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("pass %d: expected %d donations, got %d", pass, len(want), len(got))
		}
		for i := range want {
			if !got[i].Equal(want[i]) {
				t.Fatalf("pass %d: donation %d = %q, want %q", pass, i, got[i].Encode(), want[i].Encode())
			}
		}
	}
	if got[2].Name() != core.AnonymousDonor {
		t.Fatalf("expected blank donor to read back as %q, got %q", core.AnonymousDonor, got[2].Name())
	}

	sum, err := l.Sum(ctx)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if !sum.Equal(decimal.RequireFromString("125.60")) {
		t.Fatalf("expected sum 125.60, got %s", sum)
	}

	// Early break must not leave the store locked.
	for range l.All(ctx) {
		break
	}

	if err := l.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err = Collect(l.All(ctx))
	if err != nil {
		t.Fatalf("All after Clear: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty ledger after Clear, got %d", len(got))
	}
	if err := l.Clear(ctx); err != nil {
		t.Fatalf("Clear on empty ledger: %v", err)
	}

	untimed, _ := core.NewUntimedDonation("Carol", decimal.RequireFromString("7"))
	if err := l.Append(ctx, untimed); err != nil {
		t.Fatalf("Append untimed: %v", err)
	}
	got, err = Collect(l.All(ctx))
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != 1 || got[0].IsTimed() {
		t.Fatalf("expected one untimed donation, got %v", got)
	}
}

func TestParseLoadPolicy(t *testing.T) {
	cases := []struct {
		in      string
		want    LoadPolicy
		wantErr bool
	}{
		{"", Lenient, false},
		{"lenient", Lenient, false},
		{" STRICT ", Strict, false},
		{"loose", "", true},
	}
	for _, tc := range cases {
		got, err := ParseLoadPolicy(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseLoadPolicy(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseLoadPolicy(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRecordErrorUnwrap(t *testing.T) {
	_, err := core.Decode("Alice,abc")
	rerr := &RecordError{Line: 3, Text: "Alice,abc", Err: err}
	if !errors.Is(rerr, core.ErrMalformedRecord) {
		t.Fatalf("expected RecordError to unwrap to ErrMalformedRecord")
	}
}
