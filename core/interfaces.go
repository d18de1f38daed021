package core

import "github.com/tolelom/tolwallet/crypto"

// ReceiveBlockResult is the outcome WalletStateManager.ReceiveBlock reports
// back to the sync engine (spec.md §6).
type ReceiveBlockResult int

const (
	AddedToHead ReceiveBlockResult = iota
	AddedAsOrphan
	AlreadyHave
	Disconnected
	Invalid
)

// String implements fmt.Stringer for log messages.
func (r ReceiveBlockResult) String() string {
	switch r {
	case AddedToHead:
		return "ADDED_TO_HEAD"
	case AddedAsOrphan:
		return "ADDED_AS_ORPHAN"
	case AlreadyHave:
		return "ALREADY_HAVE"
	case Disconnected:
		return "DISCONNECTED"
	case Invalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// StateManager is the external collaborator facade the sync engine calls
// into. It owns all persistent wallet state (block records, LCA, chain
// index, sync mode) and the consensus verifier; this engine only consumes
// the methods below (spec.md §6). Persistence, schema, and validation are
// entirely its concern — out of scope for this repo beyond the interface.
type StateManager interface {
	// FindForkPointAlternateChain returns the highest height at which
	// headerHashes agrees with the locally accepted chain.
	FindForkPointAlternateChain(headerHashes []HeaderHash) (uint32, error)

	// ValidateSelectProofs checks the sampled prefix per spec.md §4.4 and
	// returns false (never an error) on rejection, so the sampler can
	// distinguish "sampling failed" from "sampling infrastructure broke".
	ValidateSelectProofs(
		proofs []ProofHashTriple,
		oddHeights []uint32,
		cachedHeaders map[uint32]*HeaderBlock,
		headerHashes []HeaderHash,
	) (bool, error)

	// ReceiveBlock submits a filtered block record (and, outside sync mode,
	// its header block) for acceptance onto the chain.
	ReceiveBlock(record *BlockRecord, header *HeaderBlock) (ReceiveBlockResult, error)

	// GetFilterAdditionsRemovals intersects the wallet's watched coin set
	// with the block's TransactionsFilter, returning the subsets of
	// additions/removals the wallet must fetch in full.
	GetFilterAdditionsRemovals(record *BlockRecord, filter *TransactionsFilter) (additions, removals []CoinID, err error)

	// BlockRecord looks up a previously accepted block record by hash.
	BlockRecord(hash HeaderHash) (*BlockRecord, bool)

	// LCA returns the hash of the wallet's current best accepted tip.
	LCA() HeaderHash

	// HeightToHash returns the accepted chain's hash at height, if any.
	HeightToHash(height uint32) (HeaderHash, bool)

	// SyncMode reports whether the state manager considers the wallet to be
	// in bulk catch-up (sync) mode.
	SyncMode() bool

	// SetSyncMode flips sync mode; called by the orchestrator at the start
	// and end of a sync run.
	SetSyncMode(bool)

	// NewWallet reports whether this is a freshly created wallet (no prior
	// chain state), used to pick the starting height in Phase B.
	NewWallet() bool

	// TxStore exposes the transaction store (spec.md §3 TransactionRecord,
	// §4.5 resend loop).
	TxStore() TxStore

	// ActionStore exposes the pending-action store (spec.md §3 WalletAction,
	// §4.5 resend loop).
	ActionStore() ActionStore
}

// TxStore is the transaction-record persistence facade consumed by the
// resend loop.
type TxStore interface {
	// GetNotSent returns all unconfirmed, spend-bundle-bearing records.
	GetNotSent() ([]*TransactionRecord, error)
	// AddSentTo records that bundle id was sent to peerID, for at-least-once
	// bookkeeping (deduplication itself is the transport's concern).
	AddSentTo(id string, peerID string) error
}

// ActionStore is the pending-action persistence facade consumed by the
// resend loop.
type ActionStore interface {
	GetAllPendingActions() ([]*WalletAction, error)
}

// KeyInfo pairs an enumerated private key with its fingerprint, matching
// the "enumerated private keys" Keychain contract (spec.md §1).
type KeyInfo struct {
	Fingerprint uint32
	PrivateKey  crypto.PrivateKey
}

// Keychain exposes the wallet's enumerated private keys. Key storage and
// signing internals are out of scope for this repo (spec.md §1); this
// engine only needs to enumerate and select among keys.
type Keychain interface {
	// Enumerate returns all available keys, in a stable order (so "the
	// first key" in Start's fingerprint-fallback is well-defined).
	Enumerate() ([]KeyInfo, error)
	// Select returns the key matching fingerprint, or the first enumerated
	// key if fingerprint is nil. Returns ErrNoKey if fingerprint is non-nil
	// and no match exists, or if Enumerate returns no keys at all.
	Select(fingerprint *uint32) (KeyInfo, error)
}

// PeerInfo describes a candidate or connected full-node peer.
type PeerInfo struct {
	ID       string
	Host     string
	Port     int
	FullNode bool
}

// IntroducerPeers is the external peer-discovery collaborator. The sync
// engine only starts/stops discovery and reads its current peer set; the
// introducer protocol itself is out of scope for this repo (spec.md §1).
type IntroducerPeers interface {
	Start() error
	Stop()
	Peers() []PeerInfo
}
