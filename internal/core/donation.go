package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AnonymousDonor is recorded in place of a blank donor name.
const AnonymousDonor = "Anonymous"

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidName     = errors.New("invalid donor name")
	ErrMalformedRecord = errors.New("malformed record")
)

// Donation is one immutable contribution. A donation is either timed or
// untimed; untimed records come from ledgers written without a timestamp
// column and are never given one after the fact.
type Donation struct {
	name   string
	amount decimal.Decimal
	at     time.Time
	timed  bool
}

// NewDonation creates a timed donation.
func NewDonation(name string, amount decimal.Decimal, at time.Time) (Donation, error) {
	d, err := newDonation(name, amount)
	if err != nil {
		return Donation{}, err
	}
	d.at = at
	d.timed = true
	return d, nil
}

// NewUntimedDonation creates a donation that carries no timestamp.
func NewUntimedDonation(name string, amount decimal.Decimal) (Donation, error) {
	return newDonation(name, amount)
}

func newDonation(name string, amount decimal.Decimal) (Donation, error) {
	if amount.IsNegative() {
		return Donation{}, ErrInvalidAmount
	}
	name, err := normalizeName(name)
	if err != nil {
		return Donation{}, err
	}
	return Donation{name: name, amount: amount}, nil
}

// normalizeName trims the donor name and substitutes AnonymousDonor for a
// blank one. Names may not contain the field delimiter or a line break.
func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return AnonymousDonor, nil
	}
	if strings.ContainsAny(name, Delimiter+"\r\n") {
		return "", ErrInvalidName
	}
	return name, nil
}

// Name returns the donor name.
func (d Donation) Name() string {
	return d.name
}

// Amount returns the donated amount.
func (d Donation) Amount() decimal.Decimal {
	return d.amount
}

// Timestamp returns the time of the donation and whether it has one.
func (d Donation) Timestamp() (time.Time, bool) {
	return d.at, d.timed
}

// IsTimed reports whether the donation carries a timestamp.
func (d Donation) IsTimed() bool {
	return d.timed
}

// Equal compares two donations at minute precision, which is what the
// ledger encoding preserves.
func (d Donation) Equal(o Donation) bool {
	if d.name != o.name || !d.amount.Equal(o.amount) || d.timed != o.timed {
		return false
	}
	if !d.timed {
		return true
	}
	return d.at.Truncate(time.Minute).Equal(o.at.Truncate(time.Minute))
}
