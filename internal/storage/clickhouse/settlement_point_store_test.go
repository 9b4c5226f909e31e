package clickhouse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/storage"
	chstore "token-swap-guard/internal/storage/clickhouse"
)

func point(ts int64, amountIn, amountOut uint64) *domain.SettlementPoint {
	return &domain.SettlementPoint{
		InputAsset:  "asset-a",
		OutputAsset: "asset-b",
		TimestampMs: ts,
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		Price:       float64(amountOut) / float64(amountIn),
	}
}

func TestSettlementPointStore_InsertBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewSettlementPointStore(conn)
	ctx := context.Background()

	// Empty insert is a no-op
	err := store.InsertBulk(ctx, nil)
	assert.NoError(t, err)

	err = store.InsertBulk(ctx, []*domain.SettlementPoint{point(1000, 1000, 996)})
	require.NoError(t, err)

	got, err := store.GetByPair(ctx, "asset-a", "asset-b")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.AssetID("asset-a"), got[0].InputAsset)
	assert.Equal(t, domain.AssetID("asset-b"), got[0].OutputAsset)
	assert.Equal(t, int64(1000), got[0].TimestampMs)
	assert.Equal(t, uint64(1000), got[0].AmountIn)
	assert.Equal(t, uint64(996), got[0].AmountOut)
	assert.Equal(t, 0.996, got[0].Price)
}

func TestSettlementPointStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewSettlementPointStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.SettlementPoint{point(1000, 1000, 996)}))

	err := store.InsertBulk(ctx, []*domain.SettlementPoint{point(1000, 2000, 1990)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSettlementPointStore_InsertBulk_IntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewSettlementPointStore(conn)
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.SettlementPoint{
		point(1000, 1000, 996),
		point(1000, 2000, 1990),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSettlementPointStore_GetByPair_DirectionMatters(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewSettlementPointStore(conn)
	ctx := context.Background()

	reversed := point(1000, 996, 1000)
	reversed.InputAsset, reversed.OutputAsset = "asset-b", "asset-a"

	require.NoError(t, store.InsertBulk(ctx, []*domain.SettlementPoint{
		point(2000, 1000, 996),
		point(1000, 500, 498),
		reversed,
	}))

	got, err := store.GetByPair(ctx, "asset-a", "asset-b")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1000), got[0].TimestampMs)
	assert.Equal(t, int64(2000), got[1].TimestampMs)

	rev, err := store.GetByPair(ctx, "asset-b", "asset-a")
	require.NoError(t, err)
	require.Len(t, rev, 1)
}

func TestSettlementPointStore_GetByTimeRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewSettlementPointStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.SettlementPoint{
		point(1000, 100, 99),
		point(2000, 100, 99),
		point(3000, 100, 99),
	}))

	got, err := store.GetByTimeRange(ctx, "asset-a", "asset-b", 1000, 2000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1000), got[0].TimestampMs)
	assert.Equal(t, int64(2000), got[1].TimestampMs)

	empty, err := store.GetByTimeRange(ctx, "asset-a", "asset-b", 5000, 9000)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
