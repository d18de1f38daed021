package core

import (
	"bytes"
	"sort"

	"github.com/tolelom/tolwallet/crypto"
)

// TransactionsFilter is an opaque Merkle-based membership filter over a
// block's coin additions and removals. The wallet consults it (indirectly,
// through WalletStateManager.GetFilterAdditionsRemovals) to decide whether
// it must request the full add/remove sets for a block, without learning
// which coins are relevant to anyone else.
//
// The encoding mirrors the length-prefix-then-hash technique used for
// transaction/tx-root hashing elsewhere in this codebase: each member ID is
// length-prefixed and sorted, so the filter's Root is a deterministic,
// order-independent commitment, and membership is checked by binary search
// rather than a linear scan.
type TransactionsFilter struct {
	sorted [][]byte // sorted raw 32-byte coin IDs
}

// NewTransactionsFilter builds a filter committing to the given coin IDs.
func NewTransactionsFilter(ids []CoinID) *TransactionsFilter {
	sorted := make([][]byte, len(ids))
	for i, id := range ids {
		b := make([]byte, HashSize)
		copy(b, id[:])
		sorted[i] = b
	}
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })
	return &TransactionsFilter{sorted: sorted}
}

// Contains reports whether id is a member of the filter (§ "Merkle-set
// membership" check). A false negative is impossible; this is an exact
// membership structure, not a probabilistic one, since the wallet's
// interesting-coin set is typically small.
func (f *TransactionsFilter) Contains(id CoinID) bool {
	if f == nil {
		return false
	}
	target := id[:]
	i := sort.Search(len(f.sorted), func(i int) bool { return bytes.Compare(f.sorted[i], target) >= 0 })
	return i < len(f.sorted) && bytes.Equal(f.sorted[i], target)
}

// Root returns the deterministic commitment to the filter's member set,
// built by length-prefix-encoding each sorted ID and hashing the result.
func (f *TransactionsFilter) Root() [32]byte {
	if f == nil || len(f.sorted) == 0 {
		var out [32]byte
		copy(out[:], crypto.HashBytes([]byte("empty-filter")))
		return out
	}
	var buf bytes.Buffer
	for _, id := range f.sorted {
		buf.Write(encodeUint32(uint32(len(id))))
		buf.Write(id)
	}
	var out [32]byte
	copy(out[:], crypto.HashBytes(buf.Bytes()))
	return out
}

// Bytes returns the wire encoding of the filter: a 4-byte member count
// followed by the sorted member IDs, each written as its raw 32 bytes.
func (f *TransactionsFilter) Bytes() []byte {
	var buf bytes.Buffer
	buf.Write(encodeUint32(uint32(len(f.sorted))))
	for _, id := range f.sorted {
		buf.Write(id)
	}
	return buf.Bytes()
}

// TransactionsFilterFromBytes decodes a filter produced by Bytes.
func TransactionsFilterFromBytes(b []byte) (*TransactionsFilter, error) {
	if len(b) < 4 {
		return &TransactionsFilter{}, nil
	}
	count := int(b[0])<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3])
	b = b[4:]
	sorted := make([][]byte, 0, count)
	for i := 0; i < count && len(b) >= HashSize; i++ {
		id := make([]byte, HashSize)
		copy(id, b[:HashSize])
		sorted = append(sorted, id)
		b = b[HashSize:]
	}
	return &TransactionsFilter{sorted: sorted}, nil
}
