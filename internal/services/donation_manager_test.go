package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"donations/internal/amqp"
	"donations/internal/core"
	"donations/internal/ledger"
)

var fixedNow = time.Date(2025, 11, 3, 14, 5, 0, 0, time.Local)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// flakyLedger wraps a MemoryStore and fails writes on demand.
type flakyLedger struct {
	*ledger.MemoryStore
	failAppend bool
	failClear  bool
	failRead   bool
}

func (f *flakyLedger) Append(ctx context.Context, d core.Donation) error {
	if f.failAppend {
		return ledger.ErrStoreWrite
	}
	return f.MemoryStore.Append(ctx, d)
}

func (f *flakyLedger) Clear(ctx context.Context) error {
	if f.failClear {
		return ledger.ErrStoreWrite
	}
	return f.MemoryStore.Clear(ctx)
}

func (f *flakyLedger) Sum(ctx context.Context) (decimal.Decimal, error) {
	if f.failRead {
		return decimal.Zero, ledger.ErrStoreRead
	}
	return f.MemoryStore.Sum(ctx)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func newManager(t *testing.T, l ledger.Ledger, goal string, opts ...Option) *DonationManager {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	m, err := NewDonationManager(context.Background(), l, dec(goal), opts...)
	if err != nil {
		t.Fatalf("NewDonationManager() error = %v", err)
	}
	return m
}

func TestNewDonationManager_InvalidGoal(t *testing.T) {
	for _, goal := range []string{"0", "-5"} {
		_, err := NewDonationManager(context.Background(), ledger.NewMemoryStore(), dec(goal))
		if !errors.Is(err, ErrInvalidGoal) {
			t.Errorf("goal %s: error = %v, want ErrInvalidGoal", goal, err)
		}
	}
}

func TestNewDonationManager_LoadsTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "donations.txt")
	store := ledger.NewFileStore(path)
	ctx := context.Background()
	for _, amt := range []string{"75.25", "123.456"} {
		d, _ := core.NewUntimedDonation("x", dec(amt))
		if err := store.Append(ctx, d); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	m := newManager(t, store, "1000")
	if !m.Total().Equal(dec("198.706")) {
		t.Errorf("Total() = %s, want 198.706", m.Total())
	}
}

func TestNewDonationManager_ReadFailure(t *testing.T) {
	l := &flakyLedger{MemoryStore: ledger.NewMemoryStore(), failRead: true}
	_, err := NewDonationManager(context.Background(), l, dec("10"))
	if !errors.Is(err, ledger.ErrStoreRead) {
		t.Errorf("error = %v, want ErrStoreRead", err)
	}
}

func TestDonationManager_AddDonation(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	m := newManager(t, store, "5000")

	d, err := m.AddDonation(ctx, "Alice", dec("100.50"))
	if err != nil {
		t.Fatalf("AddDonation() error = %v", err)
	}
	at, ok := d.Timestamp()
	if !ok || !at.Equal(fixedNow) {
		t.Errorf("timestamp = %v, %v; want %v", at, ok, fixedNow)
	}
	if _, err := m.AddDonation(ctx, "  ", dec("0")); err != nil {
		t.Fatalf("AddDonation(zero) error = %v", err)
	}

	if !m.Total().Equal(dec("100.50")) {
		t.Errorf("Total() = %s, want 100.50", m.Total())
	}
	all, err := m.AllDonations(ctx)
	if err != nil {
		t.Fatalf("AllDonations() error = %v", err)
	}
	if len(all) != 2 || all[0].Name() != "Alice" || all[1].Name() != core.AnonymousDonor {
		t.Errorf("AllDonations() = %v", all)
	}
	if err := m.Verify(ctx); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestDonationManager_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	store := ledger.NewMemoryStore()
	m := newManager(t, store, "100", WithPublisher(pub))

	if _, err := m.AddDonation(ctx, "Alice", dec("-1")); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("negative amount error = %v, want ErrInvalidAmount", err)
	}
	if _, err := m.AddDonation(ctx, "Smith, J", dec("1")); !errors.Is(err, core.ErrInvalidName) {
		t.Errorf("comma name error = %v, want ErrInvalidName", err)
	}
	if store.Len() != 0 || !m.Total().IsZero() || len(pub.types()) != 0 {
		t.Errorf("rejected input must not change state: len=%d total=%s events=%v", store.Len(), m.Total(), pub.types())
	}
}

func TestDonationManager_AppendFailureKeepsTotal(t *testing.T) {
	ctx := context.Background()
	l := &flakyLedger{MemoryStore: ledger.NewMemoryStore()}
	pub := &recordingPublisher{}
	m := newManager(t, l, "100", WithPublisher(pub))

	if _, err := m.AddDonation(ctx, "Alice", dec("10")); err != nil {
		t.Fatalf("AddDonation() error = %v", err)
	}
	l.failAppend = true
	if _, err := m.AddDonation(ctx, "Bob", dec("95")); !errors.Is(err, ledger.ErrStoreWrite) {
		t.Fatalf("error = %v, want ErrStoreWrite", err)
	}
	if !m.Total().Equal(dec("10")) {
		t.Errorf("Total() = %s, want 10", m.Total())
	}
	if got := pub.types(); len(got) != 1 {
		t.Errorf("events = %v, want only the first donation", got)
	}
}

func TestDonationManager_GoalCrossing(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	m := newManager(t, ledger.NewMemoryStore(), "100", WithPublisher(pub))

	if m.WillReachGoalWith(dec("99.99")) {
		t.Error("99.99 should not reach 100")
	}
	if !m.WillReachGoalWith(dec("100")) {
		t.Error("100 should reach 100")
	}

	r, err := m.Record(ctx, "Alice", dec("60"))
	if err != nil || r.CrossedGoal {
		t.Fatalf("first Record() = %+v, %v", r, err)
	}
	r, err = m.Record(ctx, "Bob", dec("40"))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !r.CrossedGoal || !r.Total.Equal(dec("100")) {
		t.Errorf("crossing receipt = %+v", r)
	}
	if !m.HasReachedGoal() {
		t.Error("HasReachedGoal() = false after crossing")
	}

	// Already at the goal: nothing crosses again.
	if m.WillReachGoalWith(dec("1")) {
		t.Error("WillReachGoalWith() must be false once the goal is reached")
	}
	r, _ = m.Record(ctx, "Carol", dec("5"))
	if r.CrossedGoal {
		t.Error("donation after the goal must not report a crossing")
	}

	want := []amqp.EventType{
		amqp.EventDonationRecorded,
		amqp.EventDonationRecorded, amqp.EventGoalReached,
		amqp.EventDonationRecorded,
	}
	got := pub.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDonationManager_ClearAll(t *testing.T) {
	ctx := context.Background()
	l := &flakyLedger{MemoryStore: ledger.NewMemoryStore()}
	pub := &recordingPublisher{}
	m := newManager(t, l, "100", WithPublisher(pub))

	m.AddDonation(ctx, "Alice", dec("150"))

	l.failClear = true
	if err := m.ClearAll(ctx); !errors.Is(err, ledger.ErrStoreWrite) {
		t.Fatalf("ClearAll() error = %v, want ErrStoreWrite", err)
	}
	if !m.Total().Equal(dec("150")) {
		t.Errorf("failed clear changed total to %s", m.Total())
	}

	l.failClear = false
	if err := m.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if !m.Total().IsZero() || m.HasReachedGoal() {
		t.Errorf("after clear total = %s reached = %v", m.Total(), m.HasReachedGoal())
	}
	if all, _ := m.AllDonations(ctx); len(all) != 0 {
		t.Errorf("AllDonations() after clear = %v", all)
	}
	types := pub.types()
	if types[len(types)-1] != amqp.EventLedgerCleared {
		t.Errorf("last event = %s, want ledger.cleared", types[len(types)-1])
	}
}

func TestDonationManager_PublishFailureIsIgnored(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	m := newManager(t, ledger.NewMemoryStore(), "100", WithPublisher(pub))

	if _, err := m.AddDonation(ctx, "Alice", dec("10")); err != nil {
		t.Fatalf("AddDonation() error = %v", err)
	}
	if err := m.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if !m.Total().IsZero() {
		t.Errorf("Total() = %s, want 0", m.Total())
	}
}

func TestDonationManager_Untimed(t *testing.T) {
	m := newManager(t, ledger.NewMemoryStore(), "100", WithTimestamps(false))
	d, err := m.AddDonation(context.Background(), "Alice", dec("1"))
	if err != nil {
		t.Fatalf("AddDonation() error = %v", err)
	}
	if d.IsTimed() {
		t.Error("donation should be untimed when timestamps are disabled")
	}
}

func TestDonationManager_Ratio(t *testing.T) {
	m := newManager(t, ledger.NewMemoryStore(), "200")
	tests := []struct {
		x    string
		want float64
	}{
		{"0", 0},
		{"50", 0.25},
		{"200", 1},
		{"500", 1},
		{"-10", 0},
	}
	for _, tt := range tests {
		if got := m.Ratio(dec(tt.x)); got != tt.want {
			t.Errorf("Ratio(%s) = %v, want %v", tt.x, got, tt.want)
		}
	}
}

func TestDonationManager_VerifyDetectsDrift(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	m := newManager(t, store, "100")

	d, _ := core.NewUntimedDonation("Sneaky", dec("5"))
	store.Append(ctx, d)

	if err := m.Verify(ctx); !errors.Is(err, ErrTotalMismatch) {
		t.Errorf("Verify() error = %v, want ErrTotalMismatch", err)
	}
}

func TestDonationManager_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewFileStore(filepath.Join(t.TempDir(), "donations.txt"))
	m := newManager(t, store, "1000")

	var wg sync.WaitGroup
	crossings := make(chan bool, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := m.Record(ctx, "Donor", dec("25.5"))
			if err != nil {
				t.Errorf("Record() error = %v", err)
				return
			}
			crossings <- r.CrossedGoal
		}()
	}
	wg.Wait()
	close(crossings)

	crossed := 0
	for c := range crossings {
		if c {
			crossed++
		}
	}
	if crossed != 1 {
		t.Errorf("goal crossed %d times, want exactly once", crossed)
	}
	if !m.Total().Equal(dec("1020")) {
		t.Errorf("Total() = %s, want 1020", m.Total())
	}
	if err := m.Verify(ctx); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}
