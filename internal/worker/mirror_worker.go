package worker

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"donations/internal/amqp"
	"donations/internal/core"
	applog "donations/internal/log"
	"donations/internal/sheets"
)

// seenCapacity bounds how many event ids are remembered for redelivery checks.
const seenCapacity = 1024

// MirrorWorker applies ledger events to a mirror
type MirrorWorker struct {
	mirror sheets.Mirror
	logger *applog.Logger

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

func NewMirrorWorker(mirror sheets.Mirror, logger *applog.Logger) *MirrorWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &MirrorWorker{
		mirror: mirror,
		logger: logger.WithComponent(applog.ComponentWorker),
		seen:   make(map[string]struct{}),
	}
}

// HandleEvent processes a single ledger event from AMQP. An event already
// applied is acknowledged without touching the mirror again.
func (w *MirrorWorker) HandleEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	if w.wasApplied(event.ID) {
		w.logger.InfoContext(ctx, "Skipping already applied event",
			applog.FieldEventID, event.ID,
			applog.FieldEventType, event.Type)
		return nil
	}

	switch event.Type {
	case amqp.EventDonationRecorded:
		d, err := event.Donation()
		if err != nil {
			return fmt.Errorf("rebuild donation: %w", err)
		}
		if err := w.mirror.AppendDonation(ctx, d); err != nil {
			return fmt.Errorf("mirror donation: %w", err)
		}
		w.logger.InfoContext(ctx, "Mirrored donation",
			applog.FieldEventID, event.ID,
			applog.FieldDonor, d.Name(),
			applog.FieldAmount, d.Amount().String())

	case amqp.EventGoalReached:
		w.logger.InfoContext(ctx, "Fundraising goal reached",
			applog.FieldEventID, event.ID,
			applog.FieldDonor, event.Donor,
			applog.FieldTotal, event.Total.StringFixed(2),
			applog.FieldGoal, event.Goal.StringFixed(2))

	case amqp.EventLedgerCleared:
		if err := w.mirror.Clear(ctx); err != nil {
			return fmt.Errorf("clear mirror: %w", err)
		}
		w.logger.InfoContext(ctx, "Cleared mirror", applog.FieldEventID, event.ID)

	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}

	w.markApplied(event.ID)
	return nil
}

// Resync rebuilds the mirror from the ledger. Useful after worker downtime
// or a lost message.
func (w *MirrorWorker) Resync(ctx context.Context, donations iter.Seq2[core.Donation, error]) (int, error) {
	if err := w.mirror.Clear(ctx); err != nil {
		return 0, fmt.Errorf("clear mirror: %w", err)
	}

	count := 0
	for d, err := range donations {
		if err != nil {
			return count, fmt.Errorf("read ledger: %w", err)
		}
		if err := w.mirror.AppendDonation(ctx, d); err != nil {
			return count, fmt.Errorf("mirror donation %d: %w", count+1, err)
		}
		count++
	}

	w.logger.InfoContext(ctx, "Mirror resynced from ledger", "donations", count)
	return count, nil
}

func (w *MirrorWorker) wasApplied(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[id]
	return ok
}

func (w *MirrorWorker) markApplied(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[id]; ok {
		return
	}
	w.seen[id] = struct{}{}
	w.order = append(w.order, id)
	if len(w.order) > seenCapacity {
		delete(w.seen, w.order[0])
		w.order = w.order[1:]
	}
}
