package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/observability"
	"token-swap-guard/internal/storage"
)

// observe records a query's duration and, for real failures, its
// error. Not-found is a routine outcome, not a database error.
func observe(operation string, start time.Time, err error) {
	if isNotFoundError(err) {
		err = nil
	}
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), err)
}

// ReceiptStore implements storage.ReceiptStore using PostgreSQL.
type ReceiptStore struct {
	pool *Pool
}

// NewReceiptStore creates a new ReceiptStore.
func NewReceiptStore(pool *Pool) *ReceiptStore {
	return &ReceiptStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReceiptStore = (*ReceiptStore)(nil)

const receiptColumns = `
	receipt_id, caller, input_asset, output_asset,
	amount_in, minimum_amount_out, amount_out,
	status, failure_reason, executed_at, expired_at, created_at
`

// Insert adds a new receipt. Returns ErrDuplicateKey if receipt_id exists.
func (s *ReceiptStore) Insert(ctx context.Context, r *domain.SwapReceipt) error {
	if r == nil || r.ReceiptID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO swap_receipts (
			receipt_id, caller, input_asset, output_asset,
			amount_in, minimum_amount_out, amount_out,
			status, failure_reason, executed_at, expired_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	createdAt := r.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		r.ReceiptID,
		string(r.Caller),
		string(r.InputAsset),
		string(r.OutputAsset),
		int64(r.AmountIn),
		int64(r.MinimumAmountOut),
		int64(r.AmountOut),
		r.Status,
		r.FailureReason,
		r.ExecutedAt,
		r.ExpiredAt,
		createdAt,
	)
	observe("insert_receipt", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

// GetByID retrieves a receipt by its ID. Returns ErrNotFound if not exists.
func (s *ReceiptStore) GetByID(ctx context.Context, receiptID string) (*domain.SwapReceipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM swap_receipts WHERE receipt_id = $1`

	start := time.Now()
	row := s.pool.QueryRow(ctx, query, receiptID)
	r, err := scanReceipt(row)
	observe("get_receipt_by_id", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get receipt by id: %w", err)
	}
	return r, nil
}

// GetByCaller retrieves all receipts for a caller, ordered by execution time ASC.
func (s *ReceiptStore) GetByCaller(ctx context.Context, caller domain.PartyID) ([]*domain.SwapReceipt, error) {
	query := `
		SELECT ` + receiptColumns + `
		FROM swap_receipts
		WHERE caller = $1
		ORDER BY executed_at ASC, receipt_id ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, string(caller))
	observe("get_receipts_by_caller", start, err)
	if err != nil {
		return nil, fmt.Errorf("get receipts by caller: %w", err)
	}
	defer rows.Close()

	return scanReceipts(rows)
}

// GetByTimeRange retrieves receipts executed within [start, end] (inclusive).
func (s *ReceiptStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SwapReceipt, error) {
	query := `
		SELECT ` + receiptColumns + `
		FROM swap_receipts
		WHERE executed_at >= $1 AND executed_at <= $2
		ORDER BY executed_at ASC, receipt_id ASC
	`

	began := time.Now()
	rows, err := s.pool.Query(ctx, query, start, end)
	observe("get_receipts_by_time_range", began, err)
	if err != nil {
		return nil, fmt.Errorf("get receipts by time range: %w", err)
	}
	defer rows.Close()

	return scanReceipts(rows)
}

// scanReceipt scans a single row into a SwapReceipt.
func scanReceipt(row pgx.Row) (*domain.SwapReceipt, error) {
	var (
		r                               domain.SwapReceipt
		caller, inputAsset, outputAsset string
		amountIn, minOut, amountOut     int64
	)

	err := row.Scan(
		&r.ReceiptID,
		&caller,
		&inputAsset,
		&outputAsset,
		&amountIn,
		&minOut,
		&amountOut,
		&r.Status,
		&r.FailureReason,
		&r.ExecutedAt,
		&r.ExpiredAt,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Caller = domain.PartyID(caller)
	r.InputAsset = domain.AssetID(inputAsset)
	r.OutputAsset = domain.AssetID(outputAsset)
	r.AmountIn = uint64(amountIn)
	r.MinimumAmountOut = uint64(minOut)
	r.AmountOut = uint64(amountOut)
	return &r, nil
}

// scanReceipts scans multiple rows into a slice of SwapReceipt.
func scanReceipts(rows pgx.Rows) ([]*domain.SwapReceipt, error) {
	var receipts []*domain.SwapReceipt

	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipt rows: %w", err)
	}

	return receipts, nil
}
