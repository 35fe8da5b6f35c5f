package sheets

import (
	"context"

	"donations/internal/core"
)

// Row header written above mirrored donations.
var Header = []string{"Timestamp", "Donor", "Amount"}

// Ports for outbound adapters.
type (
	// Mirror keeps a copy of the ledger outside the process. It is fed from
	// ledger events and is never read back into the ledger.
	Mirror interface {
		AppendDonation(ctx context.Context, d core.Donation) error
		Clear(ctx context.Context) error
	}
)

// Row renders a donation as mirror cells: timestamp (blank when untimed),
// donor and amount.
func Row(d core.Donation) []string {
	ts := ""
	if at, ok := d.Timestamp(); ok {
		ts = at.Local().Format(core.TimestampLayout)
	}
	return []string{ts, d.Name(), d.Amount().String()}
}
