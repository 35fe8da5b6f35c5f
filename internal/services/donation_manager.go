// Package services holds the donation manager, which owns the running
// total and the goal logic on top of a ledger.
package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"donations/internal/amqp"
	"donations/internal/core"
	"donations/internal/ledger"
	applog "donations/internal/log"
)

var (
	ErrInvalidGoal   = errors.New("goal must be greater than zero")
	ErrTotalMismatch = errors.New("cached total does not match ledger")
)

// EventPublisher announces ledger changes. Implemented by *amqp.Client.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.LedgerEvent) error
}

// Receipt describes an applied donation
type Receipt struct {
	Donation    core.Donation
	Total       decimal.Decimal
	CrossedGoal bool
}

// Option configures a DonationManager
type Option func(*DonationManager)

// WithPublisher publishes ledger events after each change
func WithPublisher(p EventPublisher) Option {
	return func(m *DonationManager) {
		m.publisher = p
	}
}

// WithClock sets the clock used to timestamp new donations
func WithClock(now func() time.Time) Option {
	return func(m *DonationManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTimestamps controls whether new donations are timed. Default true.
func WithTimestamps(enabled bool) Option {
	return func(m *DonationManager) {
		m.timestamps = enabled
	}
}

// WithLogger sets the manager logger
func WithLogger(l *applog.Logger) Option {
	return func(m *DonationManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// DonationManager keeps a cached total of the ledger and answers goal
// questions against it. The cache changes only after the ledger write it
// mirrors has succeeded, so it always equals a full rescan.
type DonationManager struct {
	mu     sync.Mutex
	ledger ledger.Ledger
	goal   decimal.Decimal
	total  decimal.Decimal

	publisher  EventPublisher
	now        func() time.Time
	timestamps bool
	logger     *applog.Logger
}

// NewDonationManager loads the running total from l.
func NewDonationManager(ctx context.Context, l ledger.Ledger, goal decimal.Decimal, opts ...Option) (*DonationManager, error) {
	if !goal.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidGoal, goal)
	}

	m := &DonationManager{
		ledger:     l,
		goal:       goal,
		now:        time.Now,
		timestamps: true,
		logger:     applog.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent(applog.ComponentManager)

	total, err := l.Sum(ctx)
	if err != nil {
		return nil, fmt.Errorf("load total: %w", err)
	}
	m.total = total

	m.logger.InfoContext(ctx, "Donation manager ready",
		applog.FieldTotal, total.StringFixed(2),
		applog.FieldGoal, goal.StringFixed(2))
	return m, nil
}

// AddDonation records a donation and returns it
func (m *DonationManager) AddDonation(ctx context.Context, name string, amount decimal.Decimal) (core.Donation, error) {
	r, err := m.Record(ctx, name, amount)
	if err != nil {
		return core.Donation{}, err
	}
	return r.Donation, nil
}

// Record appends a donation and reports whether it carried the total
// across the goal. The check and the write happen under one lock.
func (m *DonationManager) Record(ctx context.Context, name string, amount decimal.Decimal) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.newDonation(name, amount)
	if err != nil {
		return Receipt{}, err
	}

	crossed := m.willReachGoalWith(d.Amount())
	if err := m.ledger.Append(ctx, d); err != nil {
		m.logger.ErrorContext(ctx, "Failed to append donation",
			applog.FieldDonor, d.Name(),
			applog.FieldAmount, d.Amount().String(),
			applog.FieldError, err)
		return Receipt{}, err
	}
	m.total = m.total.Add(d.Amount())

	m.logger.InfoContext(ctx, "Donation recorded",
		applog.FieldDonor, d.Name(),
		applog.FieldAmount, d.Amount().String(),
		applog.FieldTotal, m.total.String(),
		"crossed_goal", crossed)

	m.publish(ctx, amqp.NewDonationRecordedEvent(d, m.total, m.goal))
	if crossed {
		m.publish(ctx, amqp.NewGoalReachedEvent(d, m.total, m.goal))
	}

	return Receipt{Donation: d, Total: m.total, CrossedGoal: crossed}, nil
}

func (m *DonationManager) newDonation(name string, amount decimal.Decimal) (core.Donation, error) {
	if m.timestamps {
		return core.NewDonation(name, amount, m.now())
	}
	return core.NewUntimedDonation(name, amount)
}

// ClearAll empties the ledger. The total resets only if the clear succeeds.
func (m *DonationManager) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ledger.Clear(ctx); err != nil {
		m.logger.ErrorContext(ctx, "Failed to clear ledger", applog.FieldError, err)
		return err
	}
	m.total = decimal.Zero

	m.logger.InfoContext(ctx, "All donations cleared")
	m.publish(ctx, amqp.NewLedgerClearedEvent(m.goal))
	return nil
}

// publish is best effort; the ledger change it describes already happened.
func (m *DonationManager) publish(ctx context.Context, event *amqp.LedgerEvent) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish ledger event",
			applog.FieldEventID, event.ID,
			applog.FieldEventType, event.Type,
			applog.FieldError, err)
	}
}

// WillReachGoalWith reports whether adding amount would move the total from
// below the goal to at or above it.
func (m *DonationManager) WillReachGoalWith(amount decimal.Decimal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.willReachGoalWith(amount)
}

func (m *DonationManager) willReachGoalWith(amount decimal.Decimal) bool {
	return m.total.LessThan(m.goal) && m.total.Add(amount).GreaterThanOrEqual(m.goal)
}

// HasReachedGoal reports whether the total is at or above the goal
func (m *DonationManager) HasReachedGoal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total.GreaterThanOrEqual(m.goal)
}

// Ratio returns x as a fraction of the goal, clamped to [0, 1]
func (m *DonationManager) Ratio(x decimal.Decimal) float64 {
	if !m.goal.IsPositive() {
		return 0
	}
	r := x.Div(m.goal)
	switch {
	case r.IsNegative():
		return 0
	case r.GreaterThan(decimal.NewFromInt(1)):
		return 1
	}
	return r.InexactFloat64()
}

// Progress returns the current total as a fraction of the goal
func (m *DonationManager) Progress() float64 {
	return m.Ratio(m.Total())
}

// Total returns the cached running total
func (m *DonationManager) Total() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Goal returns the fundraising goal
func (m *DonationManager) Goal() decimal.Decimal {
	return m.goal
}

// Donations streams the ledger oldest first
func (m *DonationManager) Donations(ctx context.Context) iter.Seq2[core.Donation, error] {
	return m.ledger.All(ctx)
}

// AllDonations returns every donation oldest first
func (m *DonationManager) AllDonations(ctx context.Context) ([]core.Donation, error) {
	return ledger.Collect(m.ledger.All(ctx))
}

// Verify rescans the ledger and checks it against the cached total.
func (m *DonationManager) Verify(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum, err := m.ledger.Sum(ctx)
	if err != nil {
		return fmt.Errorf("rescan ledger: %w", err)
	}
	if !sum.Equal(m.total) {
		return fmt.Errorf("%w: cached %s, ledger %s", ErrTotalMismatch, m.total, sum)
	}
	return nil
}
