// Package venue defines the exchange-venue collaborator consumed by
// the guarded executor.
package venue

import (
	"context"
	"time"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/ledger"
)

// ExecutionParams are the arguments of one execute-and-settle call.
// MinimumAmountOut carries the caller's bound exactly as supplied; the
// executor forwards it without modification and the venue evaluates it
// atomically within the settlement step.
type ExecutionParams struct {
	AmountIn         uint64
	MinimumAmountOut uint64
	Route            domain.Route

	// Payer is the custody account the venue draws the input from,
	// using its standing allowance.
	Payer domain.PartyID

	// SettlementDestination receives the proceeds. Always the original
	// caller, never the executing party.
	SettlementDestination domain.PartyID

	// Expiry is the invocation's cancellation bound. A venue reached
	// after Expiry fails with domain.ErrExpired.
	Expiry time.Time
}

// Venue executes multi-hop exchanges with a minimum-output guarantee.
//
// ExecuteAndSettle either settles with amountOut >= MinimumAmountOut,
// crediting the settlement destination, or fails with one of
// domain.ErrSlippageExceeded, domain.ErrExpired,
// domain.ErrRouteUnavailable without moving funds.
//
// tx is the ledger view settlement must be applied to — the same
// atomic envelope custody intake ran in. Venues settling on an
// external ledger ignore it and provide their own atomicity.
type Venue interface {
	ExecuteAndSettle(ctx context.Context, tx ledger.Ledger, p ExecutionParams) (*domain.SettlementOutcome, error)

	// Quote returns the currently achievable output for amountIn along
	// route, without side effects. Informational only: the settlement
	// time check inside ExecuteAndSettle remains the sole guard.
	Quote(ctx context.Context, route domain.Route, amountIn uint64) (uint64, error)
}
