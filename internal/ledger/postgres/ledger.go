// Package postgres implements ledger.TxLedger on PostgreSQL. The
// atomic envelope maps directly onto a database transaction, so any
// failure inside WithinTx reverts every balance and allowance mutation
// made within it.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/ledger"
	storagepg "token-swap-guard/internal/storage/postgres"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger implements ledger.TxLedger using PostgreSQL.
type Ledger struct {
	pool *storagepg.Pool
}

// NewLedger creates a PostgreSQL-backed ledger.
func NewLedger(pool *storagepg.Pool) *Ledger {
	return &Ledger{pool: pool}
}

var _ ledger.TxLedger = (*Ledger)(nil)

// WithinTx runs fn inside one database transaction. fn's ledger view
// is bound to the transaction; rollback on error restores the exact
// pre-envelope state.
func (l *Ledger) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Ledger) error) error {
	dbTx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx)

	if err := fn(ctx, &txLedger{q: dbTx}); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Single operations run in their own one-step envelope.

func (l *Ledger) Transfer(ctx context.Context, from, to domain.PartyID, asset domain.AssetID, amount uint64) error {
	return l.WithinTx(ctx, func(ctx context.Context, tx ledger.Ledger) error {
		return tx.Transfer(ctx, from, to, asset, amount)
	})
}

func (l *Ledger) TransferFrom(ctx context.Context, spender domain.PartyID, from, to domain.PartyID, asset domain.AssetID, amount uint64) error {
	return l.WithinTx(ctx, func(ctx context.Context, tx ledger.Ledger) error {
		return tx.TransferFrom(ctx, spender, from, to, asset, amount)
	})
}

func (l *Ledger) Authorize(ctx context.Context, owner, spender domain.PartyID, asset domain.AssetID, amount uint64) error {
	return (&txLedger{q: l.pool}).Authorize(ctx, owner, spender, asset, amount)
}

func (l *Ledger) Mint(ctx context.Context, to domain.PartyID, asset domain.AssetID, amount uint64) error {
	return (&txLedger{q: l.pool}).Mint(ctx, to, asset, amount)
}

func (l *Ledger) BalanceOf(ctx context.Context, owner domain.PartyID, asset domain.AssetID) (uint64, error) {
	return (&txLedger{q: l.pool}).BalanceOf(ctx, owner, asset)
}

func (l *Ledger) Allowance(ctx context.Context, owner, spender domain.PartyID, asset domain.AssetID) (uint64, error) {
	return (&txLedger{q: l.pool}).Allowance(ctx, owner, spender, asset)
}

// txLedger executes ledger operations against a pool or an open
// transaction.
type txLedger struct {
	q querier
}

var _ ledger.Ledger = (*txLedger)(nil)

func (t *txLedger) Transfer(ctx context.Context, from, to domain.PartyID, asset domain.AssetID, amount uint64) error {
	if amount == 0 {
		return ledger.ErrInvalidAmount
	}
	if err := t.debit(ctx, from, asset, amount); err != nil {
		return err
	}
	return t.credit(ctx, to, asset, amount)
}

func (t *txLedger) TransferFrom(ctx context.Context, spender domain.PartyID, from, to domain.PartyID, asset domain.AssetID, amount uint64) error {
	if amount == 0 {
		return ledger.ErrInvalidAmount
	}

	// Consume the allowance first; the conditional update fails when
	// the standing grant is too small.
	tag, err := t.q.Exec(ctx, `
		UPDATE allowances
		SET amount = amount - $4
		WHERE owner = $1 AND spender = $2 AND asset = $3 AND amount >= $4
	`, string(from), string(spender), string(asset), int64(amount))
	if err != nil {
		return fmt.Errorf("consume allowance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s allowance for %s on %s below %d",
			ledger.ErrNotAuthorized, from, spender, asset, amount)
	}

	return t.Transfer(ctx, from, to, asset, amount)
}

func (t *txLedger) Authorize(ctx context.Context, owner, spender domain.PartyID, asset domain.AssetID, amount uint64) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO allowances (owner, spender, asset, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, spender, asset) DO UPDATE SET amount = EXCLUDED.amount
	`, string(owner), string(spender), string(asset), int64(amount))
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	return nil
}

func (t *txLedger) Mint(ctx context.Context, to domain.PartyID, asset domain.AssetID, amount uint64) error {
	if amount == 0 {
		return ledger.ErrInvalidAmount
	}
	return t.credit(ctx, to, asset, amount)
}

func (t *txLedger) BalanceOf(ctx context.Context, owner domain.PartyID, asset domain.AssetID) (uint64, error) {
	var amount int64
	err := t.q.QueryRow(ctx, `
		SELECT COALESCE((SELECT amount FROM balances WHERE party = $1 AND asset = $2), 0)
	`, string(owner), string(asset)).Scan(&amount)
	if err != nil {
		return 0, fmt.Errorf("balance of: %w", err)
	}
	return uint64(amount), nil
}

func (t *txLedger) Allowance(ctx context.Context, owner, spender domain.PartyID, asset domain.AssetID) (uint64, error) {
	var amount int64
	err := t.q.QueryRow(ctx, `
		SELECT COALESCE((SELECT amount FROM allowances WHERE owner = $1 AND spender = $2 AND asset = $3), 0)
	`, string(owner), string(spender), string(asset)).Scan(&amount)
	if err != nil {
		return 0, fmt.Errorf("allowance: %w", err)
	}
	return uint64(amount), nil
}

// debit decrements a balance; the conditional update fails when the
// balance is too small.
func (t *txLedger) debit(ctx context.Context, owner domain.PartyID, asset domain.AssetID, amount uint64) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE balances
		SET amount = amount - $3
		WHERE party = $1 AND asset = $2 AND amount >= $3
	`, string(owner), string(asset), int64(amount))
	if err != nil {
		return fmt.Errorf("debit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s has less than %d of %s",
			ledger.ErrInsufficientBalance, owner, amount, asset)
	}
	return nil
}

func (t *txLedger) credit(ctx context.Context, owner domain.PartyID, asset domain.AssetID, amount uint64) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO balances (party, asset, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (party, asset) DO UPDATE SET amount = balances.amount + EXCLUDED.amount
	`, string(owner), string(asset), int64(amount))
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	return nil
}
