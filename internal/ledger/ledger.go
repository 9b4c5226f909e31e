// Package ledger abstracts the asset-transfer collaborator: balances,
// standing allowances, and the all-or-nothing envelope guarded swaps
// execute inside.
package ledger

import (
	"context"
	"errors"

	"token-swap-guard/internal/domain"
)

// Ledger errors. Callers classify with errors.Is and wrap into the
// invocation-level failure taxonomy.
var (
	// ErrInsufficientBalance is returned when a debit exceeds the
	// owner's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotAuthorized is returned when a spender draws more than its
	// standing allowance permits.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidAmount is returned for zero-amount operations.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Ledger provides balance and allowance operations. Implementations
// guarantee each single operation is atomic; multi-step atomicity is
// provided by TxLedger.WithinTx.
type Ledger interface {
	// Transfer moves amount of asset from one custody account to
	// another, initiated by the owner.
	Transfer(ctx context.Context, from, to domain.PartyID, asset domain.AssetID, amount uint64) error

	// TransferFrom moves amount of asset on behalf of spender,
	// consuming the (from, spender, asset) allowance.
	// Returns ErrNotAuthorized if the allowance is too small and
	// ErrInsufficientBalance if the owner's balance is.
	TransferFrom(ctx context.Context, spender domain.PartyID, from, to domain.PartyID, asset domain.AssetID, amount uint64) error

	// Authorize sets the (owner, spender, asset) allowance to amount.
	// Each grant is treated as sufficient-for-this-call.
	Authorize(ctx context.Context, owner, spender domain.PartyID, asset domain.AssetID, amount uint64) error

	// Mint credits amount of asset to a custody account. Used to fund
	// accounts and pool reserves; real deployments seed balances out
	// of band.
	Mint(ctx context.Context, to domain.PartyID, asset domain.AssetID, amount uint64) error

	// BalanceOf returns the balance of owner for asset (0 if unknown).
	BalanceOf(ctx context.Context, owner domain.PartyID, asset domain.AssetID) (uint64, error)

	// Allowance returns the standing (owner, spender, asset) allowance.
	Allowance(ctx context.Context, owner, spender domain.PartyID, asset domain.AssetID) (uint64, error)
}

// TxLedger is a Ledger that can compose several operations into one
// all-or-nothing envelope. If fn returns an error every mutation made
// through tx is reverted; no intermediate state is observable from
// outside the envelope.
type TxLedger interface {
	Ledger

	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Ledger) error) error
}
