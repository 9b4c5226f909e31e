package executor

import (
	"context"
	"fmt"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/ledger"
)

// acquire performs custody intake inside the envelope: draw the input
// amount from the caller's pre-authorization, then raise the venue's
// standing allowance on the acquired funds. Not idempotent; invoked
// exactly once per request. If the second step fails, the surrounding
// envelope reverts the first.
func (e *Executor) acquire(ctx context.Context, tx ledger.Ledger, req *domain.SwapRequest) error {
	if err := tx.TransferFrom(ctx, e.party, req.Caller, e.party, req.InputAsset, req.AmountIn); err != nil {
		return fmt.Errorf("%w: draw %d %s from %s: %v",
			domain.ErrTransferDenied, req.AmountIn, req.InputAsset, req.Caller, err)
	}

	if err := tx.Authorize(ctx, e.party, e.venueParty, req.InputAsset, req.AmountIn); err != nil {
		return fmt.Errorf("%w: grant %s allowance of %d %s: %v",
			domain.ErrAuthorizationDenied, e.venueParty, req.AmountIn, req.InputAsset, err)
	}

	return nil
}
