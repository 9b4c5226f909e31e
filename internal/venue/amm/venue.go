// Package amm provides an in-process reference venue: a single
// constant-product pool over one asset pair, with reserves held as
// ledger balances of the pool's custody account. Because pricing state
// lives on the ledger, a rolled-back envelope also restores the pool.
package amm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/ledger"
	"token-swap-guard/internal/venue"
)

// DefaultFeeBps is the default pool fee in basis points.
const DefaultFeeBps = 30

// Options configures the venue.
type Options struct {
	// Party is the pool's custody account; reserves are its balances.
	Party domain.PartyID

	// AssetA and AssetB form the tradeable pair. Both directions of
	// the direct route are served.
	AssetA domain.AssetID
	AssetB domain.AssetID

	// FeeBps is the swap fee in basis points. Defaults to DefaultFeeBps.
	FeeBps uint64

	// Ledger serves reserve reads for Quote. Settlement uses the
	// envelope-scoped ledger passed to ExecuteAndSettle.
	Ledger ledger.Ledger

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Venue is a constant-product reference venue.
type Venue struct {
	party  domain.PartyID
	assetA domain.AssetID
	assetB domain.AssetID
	feeBps uint64
	ledger ledger.Ledger
	clock  func() time.Time
}

// New creates the reference venue.
func New(opts Options) (*Venue, error) {
	if opts.Party == "" {
		return nil, fmt.Errorf("amm: pool party must be set")
	}
	if opts.AssetA == "" || opts.AssetB == "" || opts.AssetA == opts.AssetB {
		return nil, fmt.Errorf("amm: pool needs two distinct assets")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("amm: ledger must be set")
	}
	if opts.FeeBps == 0 {
		opts.FeeBps = DefaultFeeBps
	}
	if opts.FeeBps >= 10000 {
		return nil, fmt.Errorf("amm: fee %d bps out of range", opts.FeeBps)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Venue{
		party:  opts.Party,
		assetA: opts.AssetA,
		assetB: opts.AssetB,
		feeBps: opts.FeeBps,
		ledger: opts.Ledger,
		clock:  opts.Clock,
	}, nil
}

var _ venue.Venue = (*Venue)(nil)

// Party returns the pool's custody account, the spender custody intake
// grants the standing allowance to.
func (v *Venue) Party() domain.PartyID {
	return v.party
}

// ExecuteAndSettle performs the guarded exchange. The minimum-output
// check happens atomically inside the settlement step: before it
// passes, no funds move.
func (v *Venue) ExecuteAndSettle(ctx context.Context, tx ledger.Ledger, p venue.ExecutionParams) (*domain.SettlementOutcome, error) {
	if v.clock().After(p.Expiry) {
		return nil, fmt.Errorf("%w: expiry %s already passed", domain.ErrExpired, p.Expiry.Format(time.RFC3339Nano))
	}

	amountOut, err := v.quoteOn(ctx, tx, p.Route, p.AmountIn)
	if err != nil {
		return nil, err
	}

	if amountOut < p.MinimumAmountOut || amountOut == 0 {
		return nil, fmt.Errorf("%w: achievable %d below minimum %d",
			domain.ErrSlippageExceeded, amountOut, p.MinimumAmountOut)
	}

	// Draw the input via the standing allowance, then credit the
	// proceeds to the settlement destination. Reserves are ledger
	// balances, so pricing state moves inside the same envelope.
	if err := tx.TransferFrom(ctx, v.party, p.Payer, v.party, p.Route.Input(), p.AmountIn); err != nil {
		return nil, fmt.Errorf("draw input: %w", err)
	}
	if err := tx.Transfer(ctx, v.party, p.SettlementDestination, p.Route.Output(), amountOut); err != nil {
		return nil, fmt.Errorf("credit proceeds: %w", err)
	}

	return &domain.SettlementOutcome{AmountOut: amountOut}, nil
}

// Quote returns the currently achievable output without side effects.
func (v *Venue) Quote(ctx context.Context, route domain.Route, amountIn uint64) (uint64, error) {
	return v.quoteOn(ctx, v.ledger, route, amountIn)
}

// quoteOn prices the route against reserves read from l.
func (v *Venue) quoteOn(ctx context.Context, l ledger.Ledger, route domain.Route, amountIn uint64) (uint64, error) {
	if !v.serves(route) {
		return 0, fmt.Errorf("%w: pool %s/%s cannot price %s -> %s",
			domain.ErrRouteUnavailable, v.assetA, v.assetB, route.Input(), route.Output())
	}

	reserveIn, err := l.BalanceOf(ctx, v.party, route.Input())
	if err != nil {
		return 0, fmt.Errorf("read input reserve: %w", err)
	}
	reserveOut, err := l.BalanceOf(ctx, v.party, route.Output())
	if err != nil {
		return 0, fmt.Errorf("read output reserve: %w", err)
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, fmt.Errorf("%w: pool %s/%s has no liquidity",
			domain.ErrRouteUnavailable, v.assetA, v.assetB)
	}

	return constantProductOut(reserveIn, reserveOut, amountIn, v.feeBps), nil
}

// serves reports whether the route matches the pool pair in either
// direction.
func (v *Venue) serves(route domain.Route) bool {
	in, out := route.Input(), route.Output()
	return (in == v.assetA && out == v.assetB) || (in == v.assetB && out == v.assetA)
}

// constantProductOut computes the x*y=k output for amountIn after the
// basis-point fee, rounded down. big.Int avoids overflow on the
// intermediate products.
func constantProductOut(reserveIn, reserveOut, amountIn, feeBps uint64) uint64 {
	inWithFee := new(big.Int).Mul(
		new(big.Int).SetUint64(amountIn),
		new(big.Int).SetUint64(10000-feeBps),
	)
	numerator := new(big.Int).Mul(inWithFee, new(big.Int).SetUint64(reserveOut))
	denominator := new(big.Int).Add(
		new(big.Int).Mul(new(big.Int).SetUint64(reserveIn), big.NewInt(10000)),
		inWithFee,
	)
	return new(big.Int).Quo(numerator, denominator).Uint64()
}
