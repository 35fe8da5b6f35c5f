package ledger

import (
	"context"
	"iter"
	"sync"

	"github.com/shopspring/decimal"

	"donations/internal/core"
)

// MemoryStore is an in-process ledger. It is not durable and exists for
// the memory backend and for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items []core.Donation
}

// NewMemoryStore returns a store holding seed in order.
func NewMemoryStore(seed ...core.Donation) *MemoryStore {
	return &MemoryStore{items: append([]core.Donation(nil), seed...)}
}

// Append stores the donation at the end of the history.
func (s *MemoryStore) Append(ctx context.Context, d core.Donation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, d)
	return nil
}

// All yields a snapshot taken when iteration starts.
func (s *MemoryStore) All(ctx context.Context) iter.Seq2[core.Donation, error] {
	return func(yield func(core.Donation, error) bool) {
		s.mu.RLock()
		items := append([]core.Donation(nil), s.items...)
		s.mu.RUnlock()

		for _, d := range items {
			if err := ctx.Err(); err != nil {
				yield(core.Donation{}, err)
				return
			}
			if !yield(d, nil) {
				return
			}
		}
	}
}

// Clear drops every donation.
func (s *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	return nil
}

// Sum adds up every stored amount.
func (s *MemoryStore) Sum(ctx context.Context) (decimal.Decimal, error) {
	return SumOf(s.All(ctx))
}

// Len returns the number of stored donations
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
