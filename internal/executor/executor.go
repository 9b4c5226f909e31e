// Package executor orchestrates guarded swap invocations: custody
// intake and venue settlement inside one all-or-nothing ledger
// envelope. The caller-supplied minimum amount out crosses this
// package untouched on its way to the venue.
package executor

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/idhash"
	"token-swap-guard/internal/ledger"
	"token-swap-guard/internal/observability"
	"token-swap-guard/internal/storage"
	"token-swap-guard/internal/venue"
)

// Publisher receives settlement points for live subscribers. The
// stream hub implements it.
type Publisher interface {
	Publish(p *domain.SettlementPoint)
}

// Options configures the executor. Ledger and Venue are required; the
// stores and publisher are optional and skipped when nil.
type Options struct {
	// Party is the executing custody account. Intake pulls caller
	// funds into it and the venue draws from it.
	Party domain.PartyID

	// VenueParty is the spender custody intake grants the standing
	// allowance to.
	VenueParty domain.PartyID

	// InputAsset and OutputAsset bind the executor to one direct
	// route, mirroring a single-pair deployment.
	InputAsset  domain.AssetID
	OutputAsset domain.AssetID

	// Caller is the party swaps are executed for. Proceeds always
	// settle to it.
	Caller domain.PartyID

	Ledger ledger.TxLedger
	Venue  venue.Venue

	// Receipts persists an audit record per invocation, settled or
	// aborted. Best-effort: persistence failures are logged, never
	// surfaced to the caller.
	Receipts storage.ReceiptStore

	// Points persists one settlement history point per settled swap.
	Points storage.SettlementPointStore

	// Stream publishes settlement points to live subscribers.
	Stream Publisher

	// ExpiryTolerance is added to the invocation start time to form
	// the venue expiry bound. Zero means the venue must be reached
	// within the same clock reading.
	ExpiryTolerance time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	Logger *log.Logger
}

// Executor runs guarded swaps for one (caller, pair, venue) binding.
type Executor struct {
	party      domain.PartyID
	venueParty domain.PartyID
	inputAsset domain.AssetID
	outAsset   domain.AssetID
	caller     domain.PartyID

	ledger ledger.TxLedger
	venue  venue.Venue

	receipts storage.ReceiptStore
	points   storage.SettlementPointStore
	stream   Publisher

	expiryTolerance time.Duration
	clock           func() time.Time
	logger          *log.Logger

	// nonce discriminates receipt IDs of otherwise identical
	// invocations landing in the same millisecond.
	nonce atomic.Uint64
}

// New creates an executor.
func New(opts Options) (*Executor, error) {
	if opts.Party == "" {
		return nil, fmt.Errorf("executor: party must be set")
	}
	if opts.VenueParty == "" {
		return nil, fmt.Errorf("executor: venue party must be set")
	}
	if opts.Caller == "" {
		return nil, fmt.Errorf("executor: caller must be set")
	}
	if opts.InputAsset == "" || opts.OutputAsset == "" || opts.InputAsset == opts.OutputAsset {
		return nil, fmt.Errorf("executor: needs two distinct assets")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("executor: ledger must be set")
	}
	if opts.Venue == nil {
		return nil, fmt.Errorf("executor: venue must be set")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Executor{
		party:           opts.Party,
		venueParty:      opts.VenueParty,
		inputAsset:      opts.InputAsset,
		outAsset:        opts.OutputAsset,
		caller:          opts.Caller,
		ledger:          opts.Ledger,
		venue:           opts.Venue,
		receipts:        opts.Receipts,
		points:          opts.Points,
		stream:          opts.Stream,
		expiryTolerance: opts.ExpiryTolerance,
		clock:           opts.Clock,
		logger:          opts.Logger,
	}, nil
}

// Execute runs one guarded swap: pull amountIn of the input asset from
// the caller, authorize the venue, and settle with at least
// minimumAmountOut back to the caller — or revert every mutation and
// return a terminal failure. minimumAmountOut is forwarded to the
// venue exactly as supplied; zero disables the guard and is the
// caller's choice alone.
func (e *Executor) Execute(ctx context.Context, amountIn, minimumAmountOut uint64) (*domain.SettlementOutcome, error) {
	req := domain.SwapRequest{
		InputAsset:       e.inputAsset,
		OutputAsset:      e.outAsset,
		AmountIn:         amountIn,
		MinimumAmountOut: minimumAmountOut,
		Caller:           e.caller,
	}

	start := e.clock()
	expiry := start.Add(e.expiryTolerance)

	if err := req.Validate(); err != nil {
		e.record(ctx, &req, nil, start, expiry, err)
		return nil, err
	}

	observability.DefaultMetrics.SwapsInFlight.Inc()
	defer observability.DefaultMetrics.SwapsInFlight.Dec()

	var outcome *domain.SettlementOutcome
	err := e.ledger.WithinTx(ctx, func(ctx context.Context, tx ledger.Ledger) error {
		if err := e.acquire(ctx, tx, &req); err != nil {
			return err
		}

		venueStart := time.Now()
		out, err := e.venue.ExecuteAndSettle(ctx, tx, venue.ExecutionParams{
			AmountIn:              req.AmountIn,
			MinimumAmountOut:      req.MinimumAmountOut,
			Route:                 domain.NewDirectRoute(req.InputAsset, req.OutputAsset),
			Payer:                 e.party,
			SettlementDestination: req.Caller,
			Expiry:                expiry,
		})
		observability.RecordVenueLatency("execute_and_settle", time.Since(venueStart).Seconds())
		if err != nil {
			return err
		}
		outcome = out
		return nil
	})

	e.record(ctx, &req, outcome, start, expiry, err)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// record persists the receipt and, on settlement, the history point
// and stream event. All best-effort: the swap's fate is already
// decided and storage trouble must not change it.
func (e *Executor) record(ctx context.Context, req *domain.SwapRequest, outcome *domain.SettlementOutcome, start, expiry time.Time, execErr error) {
	executedAt := start.UnixMilli()
	elapsed := e.clock().Sub(start).Seconds()

	receipt := &domain.SwapReceipt{
		ReceiptID:        idhash.ComputeReceiptID(req.Caller, req.InputAsset, req.OutputAsset, req.AmountIn, executedAt, e.nonce.Add(1)),
		Caller:           req.Caller,
		InputAsset:       req.InputAsset,
		OutputAsset:      req.OutputAsset,
		AmountIn:         req.AmountIn,
		MinimumAmountOut: req.MinimumAmountOut,
		ExecutedAt:       executedAt,
		ExpiredAt:        expiry.UnixMilli(),
	}

	if execErr != nil {
		receipt.Status = domain.ReceiptStatusAborted
		receipt.FailureReason = domain.FailureReason(execErr)
		observability.RecordSwapAborted(receipt.FailureReason, elapsed)
		e.logger.Printf("[executor] swap aborted: %s amount_in=%d min_out=%d: %v",
			receipt.FailureReason, req.AmountIn, req.MinimumAmountOut, execErr)
	} else {
		receipt.Status = domain.ReceiptStatusSettled
		receipt.AmountOut = outcome.AmountOut
		observability.RecordSwapSettled(req.AmountIn, outcome.AmountOut, elapsed)
		observability.UpdateLastSettlement(start.Unix())
		e.logger.Printf("[executor] swap settled: amount_in=%d min_out=%d amount_out=%d",
			req.AmountIn, req.MinimumAmountOut, outcome.AmountOut)
	}

	if e.receipts != nil {
		if err := e.receipts.Insert(ctx, receipt); err != nil {
			e.logger.Printf("[executor] persist receipt %s: %v", receipt.ReceiptID, err)
		}
	}

	if execErr != nil {
		return
	}

	point := &domain.SettlementPoint{
		InputAsset:  req.InputAsset,
		OutputAsset: req.OutputAsset,
		TimestampMs: executedAt,
		AmountIn:    req.AmountIn,
		AmountOut:   outcome.AmountOut,
		Price:       float64(outcome.AmountOut) / float64(req.AmountIn),
	}
	if e.points != nil {
		if err := e.points.InsertBulk(ctx, []*domain.SettlementPoint{point}); err != nil {
			e.logger.Printf("[executor] persist settlement point: %v", err)
		}
	}
	if e.stream != nil {
		e.stream.Publish(point)
	}
}
