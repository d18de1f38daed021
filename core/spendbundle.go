package core

import (
	"encoding/json"

	"github.com/tolelom/tolwallet/crypto"
)

// CoinSpend is a single spend of a coin: the coin being consumed, the puzzle
// that authorizes spending it, and the arguments satisfying that puzzle.
// The puzzle/solution encoding is opaque to the wallet sync engine, which
// only needs to hash and forward the bundle, not interpret it.
type CoinSpend struct {
	Coin     CoinID `json:"coin"`
	Puzzle   []byte `json:"puzzle"`
	Solution []byte `json:"solution"`
}

// SpendBundle is a signed, atomic set of coin spends: the unit the wallet
// broadcasts to full nodes and resends until confirmed (spec.md §4.5).
type SpendBundle struct {
	Spends           []CoinSpend `json:"spends"`
	AggregatedSigHex string      `json:"aggregated_signature"`
}

// ID returns a deterministic identifier for the bundle, derived from its
// canonical JSON encoding, following the same hash-of-marshalled-struct
// technique used for transaction/block hashing elsewhere in this codebase.
func (sb *SpendBundle) ID() string {
	if sb == nil {
		return ""
	}
	data, err := json.Marshal(sb)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}
