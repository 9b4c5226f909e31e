package domain

import "errors"

// Failure taxonomy for a guarded swap invocation. All are terminal:
// any of these aborts the whole invocation and every mutation made
// within it is reverted. None are retried internally.
var (
	// ErrTransferDenied is returned when custody intake cannot draw the
	// input amount from the caller (insufficient balance or missing
	// pre-authorization on the ledger).
	ErrTransferDenied = errors.New("transfer denied")

	// ErrAuthorizationDenied is returned when the venue allowance cannot
	// be raised after the input funds were already drawn. The intake
	// transfer is reverted by the surrounding envelope.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrSlippageExceeded is returned when the venue would settle below
	// the caller-supplied minimum amount out.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrExpired is returned when the invocation reaches the venue after
	// its expiry bound.
	ErrExpired = errors.New("swap expired")

	// ErrRouteUnavailable is returned when the venue cannot price the
	// requested asset pair.
	ErrRouteUnavailable = errors.New("route unavailable")

	// ErrInvalidRequest is returned when a swap request fails validation
	// before any state is touched.
	ErrInvalidRequest = errors.New("invalid swap request")
)

// Failure reason codes persisted on aborted receipts.
const (
	ReasonTransferDenied      = "TRANSFER_DENIED"
	ReasonAuthorizationDenied = "AUTHORIZATION_DENIED"
	ReasonSlippageExceeded    = "SLIPPAGE_EXCEEDED"
	ReasonExpired             = "EXPIRED"
	ReasonRouteUnavailable    = "ROUTE_UNAVAILABLE"
	ReasonInvalidRequest      = "INVALID_REQUEST"
	ReasonInternal            = "INTERNAL"
)

// FailureReason maps a terminal failure to its persisted reason code.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransferDenied):
		return ReasonTransferDenied
	case errors.Is(err, ErrAuthorizationDenied):
		return ReasonAuthorizationDenied
	case errors.Is(err, ErrSlippageExceeded):
		return ReasonSlippageExceeded
	case errors.Is(err, ErrExpired):
		return ReasonExpired
	case errors.Is(err, ErrRouteUnavailable):
		return ReasonRouteUnavailable
	case errors.Is(err, ErrInvalidRequest):
		return ReasonInvalidRequest
	default:
		return ReasonInternal
	}
}
