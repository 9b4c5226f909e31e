package idhash

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeReceiptID_Deterministic(t *testing.T) {
	a := ComputeReceiptID("caller", "in", "out", 1000, 1704067200000, 1)
	b := ComputeReceiptID("caller", "in", "out", 1000, 1704067200000, 1)
	assert.Equal(t, a, b)
}

func TestComputeReceiptID_DistinctInputs(t *testing.T) {
	base := ComputeReceiptID("caller", "in", "out", 1000, 1704067200000, 1)

	assert.NotEqual(t, base, ComputeReceiptID("other", "in", "out", 1000, 1704067200000, 1))
	assert.NotEqual(t, base, ComputeReceiptID("caller", "in", "out", 1001, 1704067200000, 1))
	assert.NotEqual(t, base, ComputeReceiptID("caller", "in", "out", 1000, 1704067200001, 1))
}

func TestComputeReceiptID_NonceDiscriminates(t *testing.T) {
	// Identical swaps in the same millisecond must still get distinct IDs.
	a := ComputeReceiptID("caller", "in", "out", 1000, 1704067200000, 1)
	b := ComputeReceiptID("caller", "in", "out", 1000, 1704067200000, 2)
	assert.NotEqual(t, a, b)
}

func TestComputeReceiptID_EncodesSHA256(t *testing.T) {
	id := ComputeReceiptID("caller", "in", "out", 1, 1, 1)
	raw, err := base58.Decode(id)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}
