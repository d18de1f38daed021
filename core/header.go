package core

import (
	"encoding/binary"
	"encoding/json"
	"math/big"

	"github.com/tolelom/tolwallet/crypto"
)

// ProofOfSpace is the compact proof-of-space proof attached to a header.
// Only the fields the sync engine needs to chain and sample are kept; full
// proof verification lives with the external consensus verifier.
type ProofOfSpace struct {
	ChallengeHash HeaderHash `json:"challenge_hash"`
	PlotPublicKey []byte     `json:"plot_public_key"`
	Proof         []byte     `json:"proof"`
}

// Hash returns the SHA-256 hash of the proof, used for sampling (§4.4 check 2).
func (p ProofOfSpace) Hash() [32]byte {
	data, _ := json.Marshal(p)
	var out [32]byte
	copy(out[:], crypto.HashBytes(data))
	return out
}

// ProofOfTime is the compact proof-of-time (VDF) output attached to a header.
type ProofOfTime struct {
	NumIterations uint64 `json:"num_iterations"`
	Output        []byte `json:"output"`
}

// HeaderData is the portion of HeaderBlock that is signed/hashed together
// with the proofs; it carries the fields the spec calls out explicitly
// (total_iters, timestamp) plus the chain-linkage fields.
type HeaderData struct {
	Height           uint32     `json:"height"`
	PrevHash         HeaderHash `json:"prev_hash"`
	Weight           *big.Int   `json:"weight"`
	TotalIters       *big.Int   `json:"total_iters"`
	Timestamp        uint64     `json:"timestamp"`
	ChallengeHash    HeaderHash `json:"challenge_hash"`
	NewChallengeHash HeaderHash `json:"new_challenge_hash,omitempty"`
}

// HeaderBlock is the compact header the wallet sync engine requests and
// caches: height, weight, prev_hash, PoSpace, PoT, challenge, and the data
// block carrying total_iters/timestamp. It never carries a full block body.
type HeaderBlock struct {
	Data         HeaderData   `json:"data"`
	ProofOfSpace ProofOfSpace `json:"proof_of_space"`
	ProofOfTime  ProofOfTime  `json:"proof_of_time"`
}

// Height is a convenience accessor mirroring spec.md's HeaderBlock shape.
func (hb *HeaderBlock) Height() uint32 { return hb.Data.Height }

// Weight is a convenience accessor.
func (hb *HeaderBlock) Weight() *big.Int { return hb.Data.Weight }

// TotalIters is a convenience accessor.
func (hb *HeaderBlock) TotalIters() *big.Int { return hb.Data.TotalIters }

// PrevHash is a convenience accessor.
func (hb *HeaderBlock) PrevHash() HeaderHash { return hb.Data.PrevHash }

// Hash computes the HeaderHash by hashing the header's canonical JSON
// encoding, mirroring the length-prefix-then-hash technique the teacher
// codebase uses for block and transaction hashing.
func (hb *HeaderBlock) Hash() HeaderHash {
	data, err := json.Marshal(hb)
	if err != nil {
		return HeaderHash{}
	}
	var out HeaderHash
	copy(out[:], crypto.HashBytes(data))
	return out
}

// ProofOfSpaceHash returns the hash used by the sampler to cross-check
// against ProofHashTriple.PoSpaceHash (spec.md §4.4 check 2).
func (hb *HeaderBlock) ProofOfSpaceHash() [32]byte {
	return hb.ProofOfSpace.Hash()
}

// ProofHashTriple is the per-height sampling summary: PoSpace hash, an
// optional difficulty change, and total_iters, as defined in spec.md §3.
type ProofHashTriple struct {
	PoSpaceHash      [32]byte `json:"po_space_hash"`
	DifficultyChange *big.Int `json:"difficulty_change,omitempty"` // nil unless this height is a difficulty epoch
	TotalIters       *big.Int `json:"total_iters"`
}

// BlockRecord is the authenticated chain node the sync engine hands to the
// external state manager. Additions/Removals are nil until filtered: nil
// means "not yet filtered", a non-nil empty slice means "filtered, nothing
// relevant" (spec.md §3).
type BlockRecord struct {
	Hash             HeaderHash `json:"hash"`
	PrevHash         HeaderHash `json:"prev_hash"`
	Height           uint32     `json:"height"`
	Weight           *big.Int   `json:"weight"`
	Additions        []CoinID   `json:"additions"` // nil => not yet filtered
	Removals         []CoinID   `json:"removals"`  // nil => not yet filtered
	TotalIters       *big.Int   `json:"total_iters"`
	NewChallengeHash HeaderHash `json:"new_challenge_hash"`
	Timestamp        uint64     `json:"timestamp"`
}

// Filtered reports whether additions/removals have been populated (possibly
// with empty lists) rather than left as "not yet filtered".
func (r *BlockRecord) Filtered() bool {
	return r.Additions != nil && r.Removals != nil
}

// NewBlockRecordFromHeader builds an unfiltered BlockRecord (additions and
// removals left nil) from a header block, as done in header_handler.go step 2.
func NewBlockRecordFromHeader(hash HeaderHash, hb *HeaderBlock) *BlockRecord {
	return &BlockRecord{
		Hash:             hash,
		PrevHash:         hb.PrevHash(),
		Height:           hb.Height(),
		Weight:           hb.Weight(),
		TotalIters:       hb.TotalIters(),
		NewChallengeHash: hb.Data.NewChallengeHash,
		Timestamp:        hb.Data.Timestamp,
	}
}

// encodeUint32 is a small helper used by filter.go's length-prefix encoding.
func encodeUint32(n uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return b[:]
}
