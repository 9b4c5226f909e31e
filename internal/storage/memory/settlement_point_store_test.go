package memory

import (
	"context"
	"errors"
	"testing"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/storage"
)

func point(ts int64) *domain.SettlementPoint {
	return &domain.SettlementPoint{
		InputAsset:  "asset-a",
		OutputAsset: "asset-b",
		TimestampMs: ts,
		AmountIn:    1000,
		AmountOut:   996,
		Price:       0.996,
	}
}

func TestSettlementPointStore_InsertBulkAndGet(t *testing.T) {
	store := NewSettlementPointStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.SettlementPoint{point(3000), point(1000), point(2000)})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByPair(ctx, "asset-a", "asset-b")
	if err != nil {
		t.Fatalf("GetByPair failed: %v", err)
	}

	if len(result) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(result))
	}
	if result[0].TimestampMs != 1000 || result[2].TimestampMs != 3000 {
		t.Errorf("Points not ordered by timestamp: %v", result)
	}
}

func TestSettlementPointStore_IntraBatchDuplicate(t *testing.T) {
	store := NewSettlementPointStore()

	err := store.InsertBulk(context.Background(), []*domain.SettlementPoint{point(1000), point(1000)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestSettlementPointStore_PartialDuplicateRollsBack(t *testing.T) {
	store := NewSettlementPointStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.SettlementPoint{point(1000)}); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, []*domain.SettlementPoint{point(2000), point(1000)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	result, _ := store.GetByPair(ctx, "asset-a", "asset-b")
	if len(result) != 1 {
		t.Errorf("Expected 1 point (rollback), got %d", len(result))
	}
}

func TestSettlementPointStore_GetByTimeRange(t *testing.T) {
	store := NewSettlementPointStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.SettlementPoint{point(1000), point(2000), point(3000)}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByTimeRange(ctx, "asset-a", "asset-b", 1500, 3000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("Expected 2 points, got %d", len(result))
	}
}
