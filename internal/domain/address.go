package domain

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AssetID identifies a transferable asset on the ledger.
// Base58-encoded 32-byte identifier.
type AssetID string

// PartyID identifies a custody account on the ledger.
// Base58-encoded 32-byte identifier.
type PartyID string

// addressLen is the decoded length of a valid identifier.
const addressLen = 32

// decodeAddress decodes a base58 identifier and checks its length.
func decodeAddress(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("empty address")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode base58: %w", err)
	}
	if len(raw) != addressLen {
		return nil, fmt.Errorf("address must decode to %d bytes, got %d", addressLen, len(raw))
	}
	return raw, nil
}

// ParseAssetID validates and returns an AssetID.
func ParseAssetID(s string) (AssetID, error) {
	if _, err := decodeAddress(s); err != nil {
		return "", fmt.Errorf("invalid asset id %q: %w", s, err)
	}
	return AssetID(s), nil
}

// ParsePartyID validates and returns a PartyID.
func ParsePartyID(s string) (PartyID, error) {
	if _, err := decodeAddress(s); err != nil {
		return "", fmt.Errorf("invalid party id %q: %w", s, err)
	}
	return PartyID(s), nil
}

// IsOnCurve reports whether the identifier decodes to a valid ed25519
// curve point. Program-derived accounts are intentionally off-curve, so
// callers treat a false result as informational, not as a validation error.
func IsOnCurve(s string) bool {
	raw, err := decodeAddress(s)
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}
