package memory

import (
	"context"
	"sort"
	"sync"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/storage"
)

// ReceiptStore is an in-memory implementation of storage.ReceiptStore.
type ReceiptStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SwapReceipt // keyed by receipt_id
}

// NewReceiptStore creates a new in-memory receipt store.
func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{
		data: make(map[string]*domain.SwapReceipt),
	}
}

var _ storage.ReceiptStore = (*ReceiptStore)(nil)

// Insert adds a new receipt. Returns ErrDuplicateKey if receipt_id exists.
func (s *ReceiptStore) Insert(_ context.Context, r *domain.SwapReceipt) error {
	if r == nil || r.ReceiptID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ReceiptID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[r.ReceiptID] = &copy
	return nil
}

// GetByID retrieves a receipt by its ID. Returns ErrNotFound if not exists.
func (s *ReceiptStore) GetByID(_ context.Context, receiptID string) (*domain.SwapReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[receiptID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	copy := *r
	return &copy, nil
}

// GetByCaller retrieves all receipts for a caller, ordered by execution time ASC.
func (s *ReceiptStore) GetByCaller(_ context.Context, caller domain.PartyID) ([]*domain.SwapReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapReceipt
	for _, r := range s.data {
		if r.Caller == caller {
			copy := *r
			result = append(result, &copy)
		}
	}

	sortReceipts(result)
	return result, nil
}

// GetByTimeRange retrieves receipts executed within [start, end] (inclusive).
func (s *ReceiptStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.SwapReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapReceipt
	for _, r := range s.data {
		if r.ExecutedAt >= start && r.ExecutedAt <= end {
			copy := *r
			result = append(result, &copy)
		}
	}

	sortReceipts(result)
	return result, nil
}

func sortReceipts(receipts []*domain.SwapReceipt) {
	sort.Slice(receipts, func(i, j int) bool {
		if receipts[i].ExecutedAt != receipts[j].ExecutedAt {
			return receipts[i].ExecutedAt < receipts[j].ExecutedAt
		}
		return receipts[i].ReceiptID < receipts[j].ReceiptID
	})
}
