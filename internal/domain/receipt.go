package domain

// SwapReceipt is the persisted audit record of one invocation.
// Corresponds to the swap_receipts table in PostgreSQL.
type SwapReceipt struct {
	ReceiptID        string  // deterministic hash, see idhash
	Caller           PartyID // original caller; settlement destination
	InputAsset       AssetID
	OutputAsset      AssetID
	AmountIn         uint64
	MinimumAmountOut uint64 // exactly as supplied by the caller
	AmountOut        uint64 // 0 for aborted invocations
	Status           string // "SETTLED" | "ABORTED"
	FailureReason    string // reason code, empty when settled
	ExecutedAt       int64  // invocation timestamp (ms)
	ExpiredAt        int64  // expiry bound passed to the venue (ms)
	CreatedAt        int64  // record creation timestamp (ms)
}

// Receipt status constants
const (
	ReceiptStatusSettled = "SETTLED"
	ReceiptStatusAborted = "ABORTED"
)

// SettlementPoint is one executed price observation, stored in
// ClickHouse for analytics. Aborted invocations produce no point.
type SettlementPoint struct {
	InputAsset  AssetID
	OutputAsset AssetID
	TimestampMs int64
	AmountIn    uint64
	AmountOut   uint64
	Price       float64 // amount_out / amount_in
}
