// Package ledger persists donations as an append-only, ordered history.
//
// Three stores implement the Ledger port: FileStore writes the canonical
// line-oriented text file, SQLiteStore keeps the same records in SQLite and
// MemoryStore holds them in process. All of them serialise writers behind a
// single lock while letting scans overlap.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/shopspring/decimal"

	"donations/internal/core"
	applog "donations/internal/log"
)

var (
	ErrStoreRead  = errors.New("ledger read failed")
	ErrStoreWrite = errors.New("ledger write failed")
)

// Ledger is the durable donation history.
//
// All yields donations oldest first. The sequence is lazy and can be ranged
// over any number of times; each pass rescans the store. Callers must not
// append to or clear the same ledger from inside the range loop.
type Ledger interface {
	Append(ctx context.Context, d core.Donation) error
	All(ctx context.Context) iter.Seq2[core.Donation, error]
	Clear(ctx context.Context) error
	Sum(ctx context.Context) (decimal.Decimal, error)
}

// LoadPolicy decides what a scan does with a record it cannot decode.
type LoadPolicy string

const (
	// Lenient logs and skips malformed records.
	Lenient LoadPolicy = "lenient"
	// Strict stops the scan with a *RecordError.
	Strict LoadPolicy = "strict"
)

// IsValid returns true if the policy is known
func (p LoadPolicy) IsValid() bool {
	return p == Lenient || p == Strict
}

// ParseLoadPolicy parses "strict" or "lenient"; blank means lenient.
func ParseLoadPolicy(s string) (LoadPolicy, error) {
	p := LoadPolicy(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return Lenient, nil
	}
	if !p.IsValid() {
		return "", fmt.Errorf("invalid load policy %q: must be %q or %q", s, Strict, Lenient)
	}
	return p, nil
}

// RecordError reports a stored record that could not be decoded.
type RecordError struct {
	Line int
	Text string
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Option configures a store.
type Option func(*options)

type options struct {
	policy LoadPolicy
	logger *applog.Logger
}

// WithLoadPolicy sets how malformed records are handled. Default Lenient.
func WithLoadPolicy(p LoadPolicy) Option {
	return func(o *options) {
		if p.IsValid() {
			o.policy = p
		}
	}
}

// WithLogger sets the logger used for skipped records and I/O failures.
func WithLogger(l *applog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{policy: Lenient, logger: applog.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.WithComponent(applog.ComponentLedger)
	return o
}

// decodeRecord applies the load policy to one stored record. skip is true
// when the record was malformed and the policy is lenient.
func (o options) decodeRecord(line int, text string, decode func() (core.Donation, error)) (d core.Donation, skip bool, err error) {
	d, err = decode()
	if err == nil {
		return d, false, nil
	}
	rerr := &RecordError{Line: line, Text: text, Err: err}
	if o.policy == Strict {
		return core.Donation{}, false, rerr
	}
	o.logger.Warn("Skipping malformed ledger record",
		applog.FieldLine, line,
		applog.FieldError, err)
	return core.Donation{}, true, nil
}

// Collect drains a donation sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[core.Donation, error]) ([]core.Donation, error) {
	var out []core.Donation
	for d, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// SumOf adds up the amounts of a donation sequence.
func SumOf(seq iter.Seq2[core.Donation, error]) (decimal.Decimal, error) {
	total := decimal.Zero
	for d, err := range seq {
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(d.Amount())
	}
	return total, nil
}
