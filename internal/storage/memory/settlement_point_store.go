package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/storage"
)

// SettlementPointStore is an in-memory implementation of
// storage.SettlementPointStore.
type SettlementPointStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SettlementPoint // keyed by composite key
}

// NewSettlementPointStore creates a new in-memory settlement point store.
func NewSettlementPointStore() *SettlementPointStore {
	return &SettlementPointStore{
		data: make(map[string]*domain.SettlementPoint),
	}
}

var _ storage.SettlementPointStore = (*SettlementPointStore)(nil)

// pointKey generates a unique key for a settlement point.
func pointKey(input, output domain.AssetID, timestampMs int64) string {
	return fmt.Sprintf("%s|%s|%d", input, output, timestampMs)
}

// InsertBulk adds multiple points atomically. Fails entire batch on any duplicate.
func (s *SettlementPointStore) InsertBulk(_ context.Context, points []*domain.SettlementPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(points))

	for _, p := range points {
		if p == nil || p.InputAsset == "" || p.OutputAsset == "" {
			return storage.ErrInvalidInput
		}
		key := pointKey(p.InputAsset, p.OutputAsset, p.TimestampMs)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, p := range points {
		key := pointKey(p.InputAsset, p.OutputAsset, p.TimestampMs)
		copy := *p
		s.data[key] = &copy
	}

	return nil
}

// GetByPair retrieves all points for a pair, ordered by timestamp ASC.
func (s *SettlementPointStore) GetByPair(_ context.Context, input, output domain.AssetID) ([]*domain.SettlementPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SettlementPoint
	for _, p := range s.data {
		if p.InputAsset == input && p.OutputAsset == output {
			copy := *p
			result = append(result, &copy)
		}
	}

	sortPoints(result)
	return result, nil
}

// GetByTimeRange retrieves points for a pair within [start, end] (inclusive).
func (s *SettlementPointStore) GetByTimeRange(_ context.Context, input, output domain.AssetID, start, end int64) ([]*domain.SettlementPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SettlementPoint
	for _, p := range s.data {
		if p.InputAsset == input && p.OutputAsset == output && p.TimestampMs >= start && p.TimestampMs <= end {
			copy := *p
			result = append(result, &copy)
		}
	}

	sortPoints(result)
	return result, nil
}

func sortPoints(points []*domain.SettlementPoint) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].TimestampMs < points[j].TimestampMs
	})
}
