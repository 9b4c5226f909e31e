package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"

	"token-swap-guard/internal/domain"
)

// ComputeReceiptID computes a deterministic receipt_id.
// Formula: base58(SHA256(caller|input_asset|output_asset|amount_in|executed_at|nonce))
// The nonce discriminates invocations that share every other field,
// such as identical back-to-back swaps within one millisecond.
func ComputeReceiptID(
	caller domain.PartyID,
	inputAsset domain.AssetID,
	outputAsset domain.AssetID,
	amountIn uint64,
	executedAtMs int64,
	nonce uint64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d|%d",
		caller,
		inputAsset,
		outputAsset,
		amountIn,
		executedAtMs,
		nonce,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}
