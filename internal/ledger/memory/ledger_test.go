package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/ledger"
)

const (
	alice = domain.PartyID("alice")
	bob   = domain.PartyID("bob")
	carol = domain.PartyID("carol")
	gold  = domain.AssetID("gold")
)

func TestLedger_MintAndBalance(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	require.NoError(t, l.Mint(ctx, alice, gold, 1000))

	balance, err := l.BalanceOf(ctx, alice, gold)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), balance)
}

func TestLedger_Transfer(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, alice, gold, 1000))

	require.NoError(t, l.Transfer(ctx, alice, bob, gold, 400))

	aliceBal, _ := l.BalanceOf(ctx, alice, gold)
	bobBal, _ := l.BalanceOf(ctx, bob, gold)
	assert.Equal(t, uint64(600), aliceBal)
	assert.Equal(t, uint64(400), bobBal)
}

func TestLedger_Transfer_InsufficientBalance(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, alice, gold, 100))

	err := l.Transfer(ctx, alice, bob, gold, 101)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	// Nothing moved.
	aliceBal, _ := l.BalanceOf(ctx, alice, gold)
	assert.Equal(t, uint64(100), aliceBal)
}

func TestLedger_Transfer_ZeroAmount(t *testing.T) {
	l := NewLedger()
	err := l.Transfer(context.Background(), alice, bob, gold, 0)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestLedger_TransferFrom(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, alice, gold, 1000))
	require.NoError(t, l.Authorize(ctx, alice, bob, gold, 500))

	require.NoError(t, l.TransferFrom(ctx, bob, alice, carol, gold, 300))

	carolBal, _ := l.BalanceOf(ctx, carol, gold)
	assert.Equal(t, uint64(300), carolBal)

	// Allowance consumed.
	remaining, _ := l.Allowance(ctx, alice, bob, gold)
	assert.Equal(t, uint64(200), remaining)
}

func TestLedger_TransferFrom_NotAuthorized(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, alice, gold, 1000))

	err := l.TransferFrom(ctx, bob, alice, carol, gold, 1)
	assert.ErrorIs(t, err, ledger.ErrNotAuthorized)
}

func TestLedger_TransferFrom_InsufficientBalanceKeepsAllowance(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, alice, gold, 100))
	require.NoError(t, l.Authorize(ctx, alice, bob, gold, 500))

	err := l.TransferFrom(ctx, bob, alice, carol, gold, 200)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	remaining, _ := l.Allowance(ctx, alice, bob, gold)
	assert.Equal(t, uint64(500), remaining)
}

func TestLedger_WithinTx_Commit(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, alice, gold, 1000))

	err := l.WithinTx(ctx, func(ctx context.Context, tx ledger.Ledger) error {
		if err := tx.Transfer(ctx, alice, bob, gold, 250); err != nil {
			return err
		}
		return tx.Authorize(ctx, bob, carol, gold, 250)
	})
	require.NoError(t, err)

	bobBal, _ := l.BalanceOf(ctx, bob, gold)
	allowance, _ := l.Allowance(ctx, bob, carol, gold)
	assert.Equal(t, uint64(250), bobBal)
	assert.Equal(t, uint64(250), allowance)
}

func TestLedger_WithinTx_RollbackRestoresEverything(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, alice, gold, 1000))
	require.NoError(t, l.Authorize(ctx, alice, bob, gold, 777))

	boom := errors.New("boom")
	err := l.WithinTx(ctx, func(ctx context.Context, tx ledger.Ledger) error {
		if err := tx.Transfer(ctx, alice, bob, gold, 999); err != nil {
			return err
		}
		if err := tx.Authorize(ctx, alice, bob, gold, 1); err != nil {
			return err
		}
		if err := tx.Mint(ctx, carol, gold, 5); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Balances and allowances bit-identical to the pre-envelope state.
	aliceBal, _ := l.BalanceOf(ctx, alice, gold)
	bobBal, _ := l.BalanceOf(ctx, bob, gold)
	carolBal, _ := l.BalanceOf(ctx, carol, gold)
	allowance, _ := l.Allowance(ctx, alice, bob, gold)
	assert.Equal(t, uint64(1000), aliceBal)
	assert.Equal(t, uint64(0), bobBal)
	assert.Equal(t, uint64(0), carolBal)
	assert.Equal(t, uint64(777), allowance)
}

func TestLedger_WithinTx_MidwayFailure(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, alice, gold, 1000))

	err := l.WithinTx(ctx, func(ctx context.Context, tx ledger.Ledger) error {
		if err := tx.Transfer(ctx, alice, bob, gold, 600); err != nil {
			return err
		}
		// Second step fails; first must be undone.
		return tx.TransferFrom(ctx, carol, bob, carol, gold, 600)
	})
	require.ErrorIs(t, err, ledger.ErrNotAuthorized)

	aliceBal, _ := l.BalanceOf(ctx, alice, gold)
	bobBal, _ := l.BalanceOf(ctx, bob, gold)
	assert.Equal(t, uint64(1000), aliceBal)
	assert.Equal(t, uint64(0), bobBal)
}
