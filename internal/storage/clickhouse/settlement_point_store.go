package clickhouse

import (
	"context"
	"fmt"
	"time"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/observability"
	"token-swap-guard/internal/storage"
)

func observe(operation string, start time.Time, err error) {
	observability.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds(), err)
}

// SettlementPointStore implements storage.SettlementPointStore using ClickHouse.
type SettlementPointStore struct {
	conn *Conn
}

// NewSettlementPointStore creates a new SettlementPointStore.
func NewSettlementPointStore(conn *Conn) *SettlementPointStore {
	return &SettlementPointStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SettlementPointStore = (*SettlementPointStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate
// (input_asset, output_asset, timestamp_ms).
func (s *SettlementPointStore) InsertBulk(ctx context.Context, points []*domain.SettlementPoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		inputAsset  string
		outputAsset string
		timestampMs int64
	}
	seen := make(map[key]struct{})
	for _, p := range points {
		k := key{string(p.InputAsset), string(p.OutputAsset), p.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// MergeTree doesn't enforce uniqueness, so check against existing rows
	for _, p := range points {
		exists, err := s.exists(ctx, p.InputAsset, p.OutputAsset, p.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	start := time.Now()
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO settlement_points (
			input_asset, output_asset, timestamp_ms, amount_in, amount_out, price
		)
	`)
	if err != nil {
		observe("insert_points", start, err)
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			string(p.InputAsset), string(p.OutputAsset), uint64(p.TimestampMs),
			p.AmountIn, p.AmountOut, p.Price,
		)
		if err != nil {
			observe("insert_points", start, err)
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	err = batch.Send()
	observe("insert_points", start, err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByPair retrieves all points for an asset pair, ordered by timestamp ASC.
func (s *SettlementPointStore) GetByPair(ctx context.Context, input, output domain.AssetID) ([]*domain.SettlementPoint, error) {
	query := `
		SELECT input_asset, output_asset, timestamp_ms, amount_in, amount_out, price
		FROM settlement_points
		WHERE input_asset = ? AND output_asset = ?
		ORDER BY timestamp_ms ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, string(input), string(output))
	observe("get_points_by_pair", start, err)
	if err != nil {
		return nil, fmt.Errorf("query by pair: %w", err)
	}
	defer rows.Close()

	return scanSettlementPoints(rows)
}

// GetByTimeRange retrieves points for a pair within [start, end] (inclusive).
func (s *SettlementPointStore) GetByTimeRange(ctx context.Context, input, output domain.AssetID, start, end int64) ([]*domain.SettlementPoint, error) {
	query := `
		SELECT input_asset, output_asset, timestamp_ms, amount_in, amount_out, price
		FROM settlement_points
		WHERE input_asset = ? AND output_asset = ?
		  AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	began := time.Now()
	rows, err := s.conn.Query(ctx, query, string(input), string(output), uint64(start), uint64(end))
	observe("get_points_by_time_range", began, err)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanSettlementPoints(rows)
}

// exists checks if a point with the given key exists.
func (s *SettlementPointStore) exists(ctx context.Context, input, output domain.AssetID, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM settlement_points
		WHERE input_asset = ? AND output_asset = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, string(input), string(output), uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanSettlementPoints scans multiple rows into a slice.
func scanSettlementPoints(rows chRows) ([]*domain.SettlementPoint, error) {
	var points []*domain.SettlementPoint

	for rows.Next() {
		var p domain.SettlementPoint
		var inputAsset, outputAsset string
		var timestampMs uint64

		err := rows.Scan(
			&inputAsset, &outputAsset, &timestampMs,
			&p.AmountIn, &p.AmountOut, &p.Price,
		)
		if err != nil {
			return nil, fmt.Errorf("scan settlement point row: %w", err)
		}

		p.InputAsset = domain.AssetID(inputAsset)
		p.OutputAsset = domain.AssetID(outputAsset)
		p.TimestampMs = int64(timestampMs)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement point rows: %w", err)
	}

	return points, nil
}
