package domain

import "fmt"

// SwapRequest describes one guarded swap invocation. It is built from
// caller-supplied arguments, immutable for the duration of the
// invocation, and discarded afterwards.
//
// MinimumAmountOut is caller-controlled and must reach the venue's
// settlement call exactly as supplied: never defaulted, clamped, or
// replaced by a computed value. Zero is a legal caller choice (it
// disables the guard) but must never be introduced by this system.
type SwapRequest struct {
	InputAsset       AssetID
	OutputAsset      AssetID
	AmountIn         uint64
	MinimumAmountOut uint64
	Caller           PartyID
}

// Validate checks the request before any state is touched.
func (r *SwapRequest) Validate() error {
	if r.AmountIn == 0 {
		return fmt.Errorf("%w: amount in must be positive", ErrInvalidRequest)
	}
	if r.InputAsset == "" || r.OutputAsset == "" {
		return fmt.Errorf("%w: both assets must be set", ErrInvalidRequest)
	}
	if r.InputAsset == r.OutputAsset {
		return fmt.Errorf("%w: input and output asset must differ", ErrInvalidRequest)
	}
	if r.Caller == "" {
		return fmt.Errorf("%w: caller must be set", ErrInvalidRequest)
	}
	return nil
}

// Route is an ordered pair of assets: [input, output]. Constructed
// fresh per invocation; multi-hop routes are out of scope.
type Route [2]AssetID

// NewDirectRoute builds the direct two-asset route.
func NewDirectRoute(input, output AssetID) Route {
	return Route{input, output}
}

// Input returns the route's input asset.
func (r Route) Input() AssetID { return r[0] }

// Output returns the route's output asset.
func (r Route) Output() AssetID { return r[1] }

// SettlementOutcome is the only entity produced by a settled swap.
// The venue guarantees AmountOut >= the requested minimum or the
// whole operation aborts.
type SettlementOutcome struct {
	AmountOut uint64
}
