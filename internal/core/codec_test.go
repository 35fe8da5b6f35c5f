package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestEncode(t *testing.T) {
	timed, _ := NewDonation("Alice", decimal.RequireFromString("100.50"), time.Date(2025, 11, 3, 14, 5, 0, 0, time.Local))
	if got := timed.Encode(); got != "Alice,100.5,2025-11-03 14:05" {
		t.Fatalf("unexpected encoding %q", got)
	}
	untimed, _ := NewUntimedDonation("Alice", decimal.RequireFromString("100.50"))
	if got := untimed.Encode(); got != "Alice,100.5" {
		t.Fatalf("unexpected encoding %q", got)
	}
}

func TestDecode(t *testing.T) {
	cases := []struct {
		line   string
		name   string
		amount string
		timed  bool
	}{
		{"John Doe,75.25", "John Doe", "75.25", false},
		{"Test User,123.456", "Test User", "123.456", false},
		{"Bob,50.0,2025-11-03 09:15", "Bob", "50", true},
		{"Bob,50.0,", "Bob", "50", false},
		{"Bob,50.0,   ", "Bob", "50", false},
		{"Carol", "Carol", "0", false},
		{"Carol,", "Carol", "0", false},
		{",10", AnonymousDonor, "10", false},
		{"Dave,1e2", "Dave", "100", false},
		{"Eve,5,2025-11-03 09:15\r\n", "Eve", "5", true},
	}
	for _, tc := range cases {
		d, err := Decode(tc.line)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.line, err)
		}
		if d.Name() != tc.name || !d.Amount().Equal(decimal.RequireFromString(tc.amount)) || d.IsTimed() != tc.timed {
			t.Fatalf("%q: got name=%q amount=%s timed=%v", tc.line, d.Name(), d.Amount(), d.IsTimed())
		}
	}
}

func TestDecodeTimestamp(t *testing.T) {
	d, err := Decode("Bob,50,2025-11-03 09:15")
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	at, ok := d.Timestamp()
	want := time.Date(2025, 11, 3, 9, 15, 0, 0, time.Local)
	if !ok || !at.Equal(want) {
		t.Fatalf("expected %v, got %v (timed=%v)", want, at, ok)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, line := range []string{
		"Bob,abc",
		"Bob,-5",
		"Bob,5,yesterday",
		"Bob,5,2025-13-01 10:00",
		"Bob,1e400",
		"Bob,1e999999999",
		"Bob," + "1" + strings.Repeat("0", 400),
	} {
		if _, err := Decode(line); !errors.Is(err, ErrMalformedRecord) {
			t.Fatalf("%q: expected ErrMalformedRecord, got %v", line, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 15, 12, 34, 56, 0, time.Local)
	names := []string{"Alice", "O'Brien-Smith", "Big Donor", "Zoë", AnonymousDonor}
	amounts := []string{"0", "0.01", "50", "100.5", "999999.99", "123.456789"}
	for _, name := range names {
		for _, amount := range amounts {
			orig, err := NewDonation(name, decimal.RequireFromString(amount), at)
			if err != nil {
				t.Fatalf("create %q %s: %v", name, amount, err)
			}
			back, err := Decode(orig.Encode())
			if err != nil {
				t.Fatalf("decode %q: %v", orig.Encode(), err)
			}
			if !back.Equal(orig) {
				t.Fatalf("round trip mismatch: %q -> %s %s", orig.Encode(), back.Name(), back.Amount())
			}

			untimed, _ := NewUntimedDonation(name, decimal.RequireFromString(amount))
			back, err = Decode(untimed.Encode())
			if err != nil || !back.Equal(untimed) {
				t.Fatalf("untimed round trip mismatch for %q (err=%v)", untimed.Encode(), err)
			}
		}
	}
}
