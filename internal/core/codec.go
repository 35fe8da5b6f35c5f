package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Delimiter separates the fields of a ledger line.
	Delimiter = ","
	// TimestampLayout is the fixed-width yyyy-MM-dd HH:mm form used on disk.
	TimestampLayout = "2006-01-02 15:04"

	maxFields = 3
)

// Encode renders the donation as one ledger line without the trailing
// newline: name,amount[,timestamp].
func (d Donation) Encode() string {
	var b strings.Builder
	b.WriteString(d.name)
	b.WriteString(Delimiter)
	b.WriteString(d.amount.String())
	if d.timed {
		b.WriteString(Delimiter)
		b.WriteString(d.at.Local().Format(TimestampLayout))
	}
	return b.String()
}

// Decode parses one ledger line. A missing amount decodes as zero and a
// missing timestamp as an untimed donation; anything that cannot be read
// back fails with ErrMalformedRecord.
func Decode(line string) (Donation, error) {
	return DecodeFields(strings.SplitN(strings.TrimRight(line, "\r\n"), Delimiter, maxFields)...)
}

// DecodeFields builds a donation from already separated name, amount and
// timestamp fields, applying the same rules as Decode. Fields beyond the
// third are ignored.
func DecodeFields(fields ...string) (Donation, error) {
	field := func(i int) string {
		if i < len(fields) {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}
	name := ""
	if len(fields) > 0 {
		name = fields[0]
	}

	amount := decimal.Zero
	if raw := field(1); raw != "" {
		if !fitsFloat64(raw) {
			return Donation{}, fmt.Errorf("%w: amount %q out of range", ErrMalformedRecord, raw)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return Donation{}, fmt.Errorf("%w: amount %q: %v", ErrMalformedRecord, raw, err)
		}
		amount = v
	}

	if raw := field(2); raw != "" {
		at, err := time.ParseInLocation(TimestampLayout, raw, time.Local)
		if err != nil {
			return Donation{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedRecord, raw, err)
		}
		d, err := NewDonation(name, amount, at)
		if err != nil {
			return Donation{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		return d, nil
	}

	d, err := NewUntimedDonation(name, amount)
	if err != nil {
		return Donation{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return d, nil
}
