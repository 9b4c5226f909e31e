package memory

import (
	"context"
	"fmt"
	"sync"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/ledger"
)

// balanceKey identifies one (owner, asset) balance.
type balanceKey struct {
	owner domain.PartyID
	asset domain.AssetID
}

// allowanceKey identifies one (owner, spender, asset) allowance.
type allowanceKey struct {
	owner   domain.PartyID
	spender domain.PartyID
	asset   domain.AssetID
}

// Ledger is an in-memory implementation of ledger.TxLedger.
// WithinTx holds the ledger lock for the whole envelope and restores a
// snapshot on failure, so an invocation is atomic from any observer's
// point of view.
type Ledger struct {
	mu         sync.Mutex
	balances   map[balanceKey]uint64
	allowances map[allowanceKey]uint64
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[balanceKey]uint64),
		allowances: make(map[allowanceKey]uint64),
	}
}

var _ ledger.TxLedger = (*Ledger)(nil)

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(ctx context.Context, from, to domain.PartyID, asset domain.AssetID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(from, to, asset, amount)
}

// TransferFrom moves amount on behalf of spender, consuming the allowance.
func (l *Ledger) TransferFrom(ctx context.Context, spender domain.PartyID, from, to domain.PartyID, asset domain.AssetID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferFromLocked(spender, from, to, asset, amount)
}

// Authorize sets the (owner, spender, asset) allowance to amount.
func (l *Ledger) Authorize(ctx context.Context, owner, spender domain.PartyID, asset domain.AssetID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{owner, spender, asset}] = amount
	return nil
}

// Mint credits amount of asset to an account.
func (l *Ledger) Mint(ctx context.Context, to domain.PartyID, asset domain.AssetID, amount uint64) error {
	if amount == 0 {
		return ledger.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[balanceKey{to, asset}] += amount
	return nil
}

// BalanceOf returns the balance of owner for asset.
func (l *Ledger) BalanceOf(ctx context.Context, owner domain.PartyID, asset domain.AssetID) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey{owner, asset}], nil
}

// Allowance returns the standing (owner, spender, asset) allowance.
func (l *Ledger) Allowance(ctx context.Context, owner, spender domain.PartyID, asset domain.AssetID) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[allowanceKey{owner, spender, asset}], nil
}

// WithinTx runs fn inside an all-or-nothing envelope. The ledger lock
// is held for the whole envelope; on error the pre-envelope snapshot is
// restored bit-identically.
func (l *Ledger) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Ledger) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances := make(map[balanceKey]uint64, len(l.balances))
	for k, v := range l.balances {
		balances[k] = v
	}
	allowances := make(map[allowanceKey]uint64, len(l.allowances))
	for k, v := range l.allowances {
		allowances[k] = v
	}

	if err := fn(ctx, &txView{l}); err != nil {
		l.balances = balances
		l.allowances = allowances
		return err
	}
	return nil
}

// txView exposes ledger operations inside an envelope that already
// holds the lock.
type txView struct {
	l *Ledger
}

var _ ledger.Ledger = (*txView)(nil)

func (t *txView) Transfer(ctx context.Context, from, to domain.PartyID, asset domain.AssetID, amount uint64) error {
	return t.l.transferLocked(from, to, asset, amount)
}

func (t *txView) TransferFrom(ctx context.Context, spender domain.PartyID, from, to domain.PartyID, asset domain.AssetID, amount uint64) error {
	return t.l.transferFromLocked(spender, from, to, asset, amount)
}

func (t *txView) Authorize(ctx context.Context, owner, spender domain.PartyID, asset domain.AssetID, amount uint64) error {
	t.l.allowances[allowanceKey{owner, spender, asset}] = amount
	return nil
}

func (t *txView) Mint(ctx context.Context, to domain.PartyID, asset domain.AssetID, amount uint64) error {
	if amount == 0 {
		return ledger.ErrInvalidAmount
	}
	t.l.balances[balanceKey{to, asset}] += amount
	return nil
}

func (t *txView) BalanceOf(ctx context.Context, owner domain.PartyID, asset domain.AssetID) (uint64, error) {
	return t.l.balances[balanceKey{owner, asset}], nil
}

func (t *txView) Allowance(ctx context.Context, owner, spender domain.PartyID, asset domain.AssetID) (uint64, error) {
	return t.l.allowances[allowanceKey{owner, spender, asset}], nil
}

// transferLocked debits from and credits to. Caller holds the lock.
func (l *Ledger) transferLocked(from, to domain.PartyID, asset domain.AssetID, amount uint64) error {
	if amount == 0 {
		return ledger.ErrInvalidAmount
	}

	fromKey := balanceKey{from, asset}
	if l.balances[fromKey] < amount {
		return fmt.Errorf("%w: %s has %d of %s, need %d",
			ledger.ErrInsufficientBalance, from, l.balances[fromKey], asset, amount)
	}

	l.balances[fromKey] -= amount
	l.balances[balanceKey{to, asset}] += amount
	return nil
}

// transferFromLocked consumes the allowance, then transfers. Caller
// holds the lock.
func (l *Ledger) transferFromLocked(spender domain.PartyID, from, to domain.PartyID, asset domain.AssetID, amount uint64) error {
	if amount == 0 {
		return ledger.ErrInvalidAmount
	}

	aKey := allowanceKey{from, spender, asset}
	if l.allowances[aKey] < amount {
		return fmt.Errorf("%w: %s allowed %d of %s for %s, need %d",
			ledger.ErrNotAuthorized, from, l.allowances[aKey], asset, spender, amount)
	}

	if err := l.transferLocked(from, to, asset, amount); err != nil {
		return err
	}

	l.allowances[aKey] -= amount
	return nil
}
