package walletsync

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/events"
	"github.com/tolelom/tolwallet/network"
)

// ShortSyncThreshold is the height gap below which the header handler walks
// missing ancestors backward itself rather than waiting for the
// orchestrator to start a full sync (spec.md GLOSSARY "Short-sync
// threshold").
const ShortSyncThreshold = 15

// Sender is the minimal peer-messaging surface the header handler and
// resend loop need. *network.Node satisfies it.
type Sender interface {
	SendTo(peerID string, msg network.Message) error
	FullNodePeerIDs() []string
}

// HeaderHandler implements the header/response handler (spec.md §4.2): the
// entry point for an incoming RespondHeader, run as a loop over a queue of
// deferred successors rather than recursion. Because this engine uses a
// future_block_hashes multimap (the REDESIGN fix for the original's
// single-successor bug), the queue may hold more than the "at most one"
// the original spec envisioned; the loop drains all of them.
type HeaderHandler struct {
	Cache   *Cache
	Sync    *SyncState
	SM      core.StateManager
	Sender  Sender
	Emitter *events.Emitter
}

// HandleRespondHeader processes one RespondHeader delivered by peerID,
// looping over any children it unblocks (spec.md §4.2 step 7).
func (h *HeaderHandler) HandleRespondHeader(peerID string, resp *network.RespondHeader) error {
	if resp == nil || resp.HeaderBlock == nil {
		return fmt.Errorf("walletsync: nil header block in respond_header")
	}
	hash := resp.HeaderBlock.Hash()

	// Step 1: already committed, or genesis (handled elsewhere).
	if _, committed := h.SM.BlockRecord(hash); committed {
		return nil
	}
	if resp.HeaderBlock.Height() < 1 {
		return nil
	}

	filter, err := core.TransactionsFilterFromBytes(resp.TransactionsFilter)
	if err != nil {
		return fmt.Errorf("decode transactions filter: %w", err)
	}
	// A redelivery of this same entry (e.g. while its request_additions
	// answer is still outstanding) must not discard a prior filtering
	// result, so reuse the cached record if step 6 already ran on it.
	record := core.NewBlockRecordFromHeader(hash, resp.HeaderBlock)
	if cb, ok := h.Cache.Get(hash); ok && cb.Record.Filtered() {
		record = cb.Record
	}

	var queue []core.HeaderHash
	h.processEntry(hash, record, resp.HeaderBlock, filter, peerID, &queue)

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		cb, ok := h.Cache.Get(next)
		if !ok {
			// Transient: already handled via another path (e.g. a
			// concurrent redelivery already evicted it).
			continue
		}
		h.processEntry(next, cb.Record, cb.Header, cb.Filter, peerID, &queue)
	}
	return nil
}

// processEntry runs steps 2-7 of the header handler for one block, either
// freshly arrived off the wire or replayed from the cache after its parent
// committed.
func (h *HeaderHandler) processEntry(hash core.HeaderHash, record *core.BlockRecord, header *core.HeaderBlock, filter *core.TransactionsFilter, peerID string, queue *[]core.HeaderHash) {
	// Step 3: sampling-mode signal.
	if h.SM.SyncMode() {
		if _, tracked := h.Sync.PotentialBlocks[record.Height]; tracked {
			h.Sync.SignalHeight(record.Height, hash)
		}
	}

	// Step 4: insert into cached_blocks (idempotent under redelivery).
	h.Cache.Put(hash, &CachedBlock{Record: record, Header: header, Filter: filter})

	// Step 5: ancestor missing.
	if record.Height > 0 {
		if _, committed := h.SM.BlockRecord(record.PrevHash); !committed {
			h.Cache.AddFuture(record.PrevHash, hash)
			if !h.SM.SyncMode() && record.Height-h.lcaHeight() < ShortSyncThreshold {
				h.request(peerID, network.MsgRequestHeader, network.RequestHeader{
					Height:     record.Height - 1,
					HeaderHash: record.PrevHash,
				})
			}
			return
		}
	}

	// Step 6: ancestor present; consult the filter, unless a prior
	// delivery of this same entry already filtered it (idempotence check:
	// a redelivered/requeued entry must not be re-filtered).
	var additions, removals []core.CoinID
	if record.Filtered() {
		additions, removals = record.Additions, record.Removals
	} else {
		var err error
		additions, removals, err = h.SM.GetFilterAdditionsRemovals(record, filter)
		if err != nil {
			log.Printf("[walletsync] get_filter_additions_removals height=%d: %v", record.Height, err)
			return
		}
	}
	if !record.Filtered() {
		if additions == nil {
			additions = []core.CoinID{}
		}
		if removals == nil {
			removals = []core.CoinID{}
		}
		record.Additions = additions
		record.Removals = removals
	}
	if len(additions) > 0 || len(removals) > 0 {
		h.request(peerID, network.MsgRequestAdditions, network.RequestAdditions{
			Height:     record.Height,
			HeaderHash: hash,
			CoinIDs:    additions,
		})
		return
	}

	// Step 7: no interesting coins; finish and continue the loop with any
	// unblocked children.
	children := BlockFinished(h.Cache, h.SM, h.Emitter, record, header)
	*queue = append(*queue, children...)
}

func (h *HeaderHandler) lcaHeight() uint32 {
	lca := h.SM.LCA()
	if lca.IsZero() {
		return 0
	}
	if rec, ok := h.SM.BlockRecord(lca); ok {
		return rec.Height
	}
	return 0
}

func (h *HeaderHandler) request(peerID string, typ network.MsgType, payload any) {
	sendMessage(h.Sender, peerID, typ, payload)
}

// sendMessage marshals payload and sends it to peerID as typ, logging (but
// swallowing) any failure -- sends are best-effort per spec.md §4.5/§9.
func sendMessage(sender Sender, peerID string, typ network.MsgType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[walletsync] marshal %s: %v", typ, err)
		return
	}
	if err := sender.SendTo(peerID, network.Message{Type: typ, Payload: data}); err != nil {
		log.Printf("[walletsync] send %s to %s: %v", typ, peerID, err)
	}
}
