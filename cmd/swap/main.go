// Package main runs one guarded swap end to end on an in-memory
// ledger and pool, printing the outcome and resulting balances. Useful
// for demos and quick local verification.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"token-swap-guard/internal/domain"
	"token-swap-guard/internal/executor"
	ledgermem "token-swap-guard/internal/ledger/memory"
	"token-swap-guard/internal/storage/memory"
	"token-swap-guard/internal/venue/amm"
)

func main() {
	amountIn := flag.Uint64("amount-in", 1000, "Input amount to swap")
	minimumOut := flag.Uint64("minimum-out", 0, "Minimum acceptable output (0 disables the guard)")
	inputAsset := flag.String("input-asset", "asset-a", "Input asset")
	outputAsset := flag.String("output-asset", "asset-b", "Output asset")
	reserve := flag.Uint64("reserve", 1_000_000, "Pool reserve per side")
	balance := flag.Uint64("balance", 100_000, "Caller starting balance")
	feeBps := flag.Uint64("fee-bps", amm.DefaultFeeBps, "Pool fee in basis points")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	logger := log.New(os.Stderr, "[swap] ", log.LstdFlags)

	const (
		caller    = domain.PartyID("caller")
		execParty = domain.PartyID("executor")
		poolParty = domain.PartyID("pool")
	)
	in, out := domain.AssetID(*inputAsset), domain.AssetID(*outputAsset)

	ctx := context.Background()
	ldg := ledgermem.NewLedger()

	must(logger, ldg.Mint(ctx, caller, in, *balance))
	must(logger, ldg.Authorize(ctx, caller, execParty, in, *balance))
	must(logger, ldg.Mint(ctx, poolParty, in, *reserve))
	must(logger, ldg.Mint(ctx, poolParty, out, *reserve))

	pool, err := amm.New(amm.Options{
		Party:  poolParty,
		AssetA: in,
		AssetB: out,
		FeeBps: *feeBps,
		Ledger: ldg,
	})
	must(logger, err)

	receipts := memory.NewReceiptStore()

	exec, err := executor.New(executor.Options{
		Party:       execParty,
		VenueParty:  poolParty,
		InputAsset:  in,
		OutputAsset: out,
		Caller:      caller,
		Ledger:      ldg,
		Venue:       pool,
		Receipts:    receipts,
		Logger:      logger,
	})
	must(logger, err)

	outcome, execErr := exec.Execute(ctx, *amountIn, *minimumOut)

	type result struct {
		Status        string `json:"status"`
		AmountIn      uint64 `json:"amount_in"`
		MinimumOut    uint64 `json:"minimum_amount_out"`
		AmountOut     uint64 `json:"amount_out,omitempty"`
		FailureReason string `json:"failure_reason,omitempty"`
		CallerInput   uint64 `json:"caller_input_balance"`
		CallerOutput  uint64 `json:"caller_output_balance"`
	}

	callerIn, _ := ldg.BalanceOf(ctx, caller, in)
	callerOut, _ := ldg.BalanceOf(ctx, caller, out)

	res := result{
		AmountIn:     *amountIn,
		MinimumOut:   *minimumOut,
		CallerInput:  callerIn,
		CallerOutput: callerOut,
	}
	if execErr != nil {
		res.Status = string(domain.ReceiptStatusAborted)
		res.FailureReason = domain.FailureReason(execErr)
	} else {
		res.Status = string(domain.ReceiptStatusSettled)
		res.AmountOut = outcome.AmountOut
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		must(logger, enc.Encode(res))
	} else {
		fmt.Printf("status:  %s\n", res.Status)
		if execErr != nil {
			fmt.Printf("reason:  %s (%v)\n", res.FailureReason, execErr)
		} else {
			fmt.Printf("out:     %d %s (minimum was %d)\n", res.AmountOut, out, *minimumOut)
		}
		fmt.Printf("caller:  %d %s, %d %s\n", callerIn, in, callerOut, out)
	}

	if execErr != nil {
		os.Exit(1)
	}
}

func must(logger *log.Logger, err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
