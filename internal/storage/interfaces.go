package storage

import (
	"context"

	"token-swap-guard/internal/domain"
)

// ReceiptStore provides access to swap_receipts storage.
type ReceiptStore interface {
	// Insert adds a new receipt. Returns ErrDuplicateKey if receipt_id exists.
	Insert(ctx context.Context, r *domain.SwapReceipt) error

	// GetByID retrieves a receipt by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, receiptID string) (*domain.SwapReceipt, error)

	// GetByCaller retrieves all receipts for a caller, ordered by execution time ASC.
	GetByCaller(ctx context.Context, caller domain.PartyID) ([]*domain.SwapReceipt, error)

	// GetByTimeRange retrieves receipts executed within [start, end] (inclusive, ms).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SwapReceipt, error)
}

// SettlementPointStore provides access to settlement_points storage.
// One point per settled swap; aborted invocations produce none.
type SettlementPointStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate
	// (input_asset, output_asset, timestamp_ms).
	InsertBulk(ctx context.Context, points []*domain.SettlementPoint) error

	// GetByPair retrieves all points for an asset pair, ordered by timestamp ASC.
	GetByPair(ctx context.Context, input, output domain.AssetID) ([]*domain.SettlementPoint, error)

	// GetByTimeRange retrieves points for a pair within [start, end] (inclusive, ms).
	GetByTimeRange(ctx context.Context, input, output domain.AssetID, start, end int64) ([]*domain.SettlementPoint, error)
}
