package network

import "github.com/tolelom/tolwallet/core"

// MsgType labels a network message. Values match spec.md §6's wire message
// names exactly so logs and wire captures read directly against the spec.
const (
	MsgHello                       MsgType = "hello"
	MsgRequestAllHeaderHashesAfter MsgType = "request_all_header_hashes_after"
	MsgRespondAllHeaderHashes      MsgType = "respond_all_header_hashes"
	MsgRejectAllHeaderHashesAfter  MsgType = "reject_all_header_hashes_after"
	MsgRequestAllProofHashes       MsgType = "request_all_proof_hashes"
	MsgRespondAllProofHashes       MsgType = "respond_all_proof_hashes"
	MsgRequestHeader               MsgType = "request_header"
	MsgRespondHeader               MsgType = "respond_header"
	MsgRequestAdditions            MsgType = "request_additions"
	MsgSendTransaction             MsgType = "send_transaction"
	MsgRequestGenerator            MsgType = "request_generator"
	MsgRequestPeers                MsgType = "request_peers"
	MsgRespondPeers                MsgType = "respond_peers"
)

// RequestAllHeaderHashesAfter asks a peer for the header-hash skeleton of
// the chain starting at StartHeight, under the given genesis challenge.
type RequestAllHeaderHashesAfter struct {
	StartHeight   uint32          `json:"start_height"`
	ChallengeHash core.HeaderHash `json:"challenge_hash"`
}

// RespondAllHeaderHashes carries the skeleton in height order.
type RespondAllHeaderHashes struct {
	Hashes []core.HeaderHash `json:"hashes"`
}

// RejectAllHeaderHashesAfter signals the peer refused the skeleton request.
type RejectAllHeaderHashesAfter struct {
	StartHeight uint32 `json:"start_height"`
	Reason      string `json:"reason,omitempty"`
}

// RequestAllProofHashes carries no payload; kept as a named type for
// symmetry with the handler dispatch table.
type RequestAllProofHashes struct{}

// RespondAllProofHashes carries the full proof-hash-triple skeleton.
type RespondAllProofHashes struct {
	Proofs []core.ProofHashTriple `json:"proofs"`
}

// RequestHeader asks a peer for the full HeaderBlock at height, which must
// hash to headerHash.
type RequestHeader struct {
	Height     uint32          `json:"height"`
	HeaderHash core.HeaderHash `json:"header_hash"`
}

// RespondHeader carries a requested or pushed header and its transactions
// filter.
type RespondHeader struct {
	HeaderBlock        *core.HeaderBlock `json:"header_block"`
	TransactionsFilter []byte            `json:"transactions_filter"` // core.TransactionsFilter.Bytes()
}

// RequestAdditions asks a peer for the full coin-addition set at
// (height, headerHash), restricted to the given IDs of interest.
type RequestAdditions struct {
	Height     uint32          `json:"height"`
	HeaderHash core.HeaderHash `json:"header_hash"`
	CoinIDs    []core.CoinID   `json:"coin_ids"`
}

// SendTransaction carries a spend bundle to be relayed into the peer's
// mempool.
type SendTransaction struct {
	Bundle *core.SpendBundle `json:"bundle"`
}

// RequestGenerator asks a peer for the block generator at
// (height, headerHash), used to re-derive a coin's puzzle/solution.
type RequestGenerator struct {
	Height     uint32          `json:"height"`
	HeaderHash core.HeaderHash `json:"header_hash"`
}

// RequestPeers carries no payload; asks an introducer for known full-node
// peer addresses.
type RequestPeers struct{}

// RespondPeers carries the introducer's known full-node peer set.
type RespondPeers struct {
	Peers []core.PeerInfo `json:"peers"`
}
