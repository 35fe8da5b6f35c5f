package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"donations/internal/core"
)

// EventType names a ledger change
type EventType string

const (
	EventDonationRecorded EventType = "donation.recorded"
	EventGoalReached      EventType = "goal.reached"
	EventLedgerCleared    EventType = "ledger.cleared"
)

// IsValid returns true if the event type is known
func (t EventType) IsValid() bool {
	switch t {
	case EventDonationRecorded, EventGoalReached, EventLedgerCleared:
		return true
	default:
		return false
	}
}

// LedgerEvent is published after the ledger has durably changed. Donor,
// Amount and DonatedAt describe the donation for donation.recorded and
// goal.reached; Total is the running total after the change.
type LedgerEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Donor     string          `json:"donor,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	DonatedAt *time.Time      `json:"donated_at,omitempty"`
	Total     decimal.Decimal `json:"total"`
	Goal      decimal.Decimal `json:"goal"`
	Timestamp time.Time       `json:"timestamp"`
}

func newLedgerEvent(t EventType, total, goal decimal.Decimal) *LedgerEvent {
	return &LedgerEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Total:     total,
		Goal:      goal,
		Timestamp: time.Now(),
	}
}

func newDonationEvent(t EventType, d core.Donation, total, goal decimal.Decimal) *LedgerEvent {
	e := newLedgerEvent(t, total, goal)
	e.Donor = d.Name()
	e.Amount = d.Amount()
	if at, ok := d.Timestamp(); ok {
		e.DonatedAt = &at
	}
	return e
}

// NewDonationRecordedEvent describes a donation that was appended to the ledger
func NewDonationRecordedEvent(d core.Donation, total, goal decimal.Decimal) *LedgerEvent {
	return newDonationEvent(EventDonationRecorded, d, total, goal)
}

// NewGoalReachedEvent describes the donation that carried the total across the goal
func NewGoalReachedEvent(d core.Donation, total, goal decimal.Decimal) *LedgerEvent {
	return newDonationEvent(EventGoalReached, d, total, goal)
}

// NewLedgerClearedEvent describes a ledger reset
func NewLedgerClearedEvent(goal decimal.Decimal) *LedgerEvent {
	return newLedgerEvent(EventLedgerCleared, decimal.Zero, goal)
}

// Validate checks the fields a consumer relies on
func (e *LedgerEvent) Validate() error {
	if e.ID == "" {
		return errors.New("missing event id")
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		return fmt.Errorf("invalid event id %q: %w", e.ID, err)
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("negative amount %s", e.Amount)
	}
	return nil
}

// Donation rebuilds the donation carried by a donation event
func (e *LedgerEvent) Donation() (core.Donation, error) {
	if e.DonatedAt != nil {
		return core.NewDonation(e.Donor, e.Amount, *e.DonatedAt)
	}
	return core.NewUntimedDonation(e.Donor, e.Amount)
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and validates an event
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
