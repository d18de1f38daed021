package walletsync

import (
	"log"

	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/events"
)

// CachedBlock is an entry in Cache.blocks: a block awaiting either an
// ancestor or its add/remove sets (spec.md §3, §4.2-§4.3).
type CachedBlock struct {
	Record *core.BlockRecord
	Header *core.HeaderBlock
	Filter *core.TransactionsFilter
}

// Cache holds cached_blocks and future_block_hashes (spec.md §3). It is
// touched only from the single actor goroutine (spec.md §5); no internal
// locking is needed as long as callers respect that discipline, matching
// the "wrap the core in a single mailbox/actor" design note.
//
// future_block_hashes is a multimap (prev hash -> all waiting children),
// not the original's lossy single-successor map, per the REDESIGN note in
// spec.md §9: "if two children of the same missing ancestor arrive, one is
// lost. A sound reimplementation should use a multimap."
type Cache struct {
	blocks map[core.HeaderHash]*CachedBlock
	future map[core.HeaderHash][]core.HeaderHash
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{
		blocks: make(map[core.HeaderHash]*CachedBlock),
		future: make(map[core.HeaderHash][]core.HeaderHash),
	}
}

// Put inserts or overwrites the cached entry for hash (idempotent
// redelivery, spec.md §4.2 "re-insertion overwrites with identical
// content").
func (c *Cache) Put(hash core.HeaderHash, cb *CachedBlock) {
	c.blocks[hash] = cb
}

// Get returns the cached entry for hash, if any.
func (c *Cache) Get(hash core.HeaderHash) (*CachedBlock, bool) {
	cb, ok := c.blocks[hash]
	return cb, ok
}

// Delete evicts hash from the cache.
func (c *Cache) Delete(hash core.HeaderHash) {
	delete(c.blocks, hash)
}

// Len reports how many blocks are currently cached.
func (c *Cache) Len() int {
	return len(c.blocks)
}

// AddFuture records that next is waiting on prev to arrive/commit
// (invariant 2 generalized to a set: prev may have multiple waiting
// children).
func (c *Cache) AddFuture(prev, next core.HeaderHash) {
	for _, existing := range c.future[prev] {
		if existing == next {
			return
		}
	}
	c.future[prev] = append(c.future[prev], next)
}

// PopFuture removes and returns every hash waiting on prev, if any.
func (c *Cache) PopFuture(prev core.HeaderHash) []core.HeaderHash {
	children := c.future[prev]
	if len(children) == 0 {
		return nil
	}
	delete(c.future, prev)
	return children
}

// EvictOlderThan removes every cached block whose height is strictly less
// than tipHeight-margin (spec.md §4.3, invariant 3: "entries older than
// h−100 is evictable"). Called only in steady state (not sync mode).
func (c *Cache) EvictOlderThan(tipHeight, margin uint32) {
	if tipHeight < margin {
		return
	}
	horizon := tipHeight - margin
	for hash, cb := range c.blocks {
		if cb.Record.Height < horizon {
			delete(c.blocks, hash)
		}
	}
}

// SyncState holds the sync-scoped maps from spec.md §3: header_hashes,
// proof_hashes, potential_blocks_received, potential_header_hashes. These
// are cleared at the start of every _sync run.
type SyncState struct {
	HeaderHashes     []core.HeaderHash
	HeaderHashesErr  bool
	ProofHashes      []core.ProofHashTriple
	PotentialBlocks  map[uint32]chan struct{}
	PotentialHeaders map[uint32]core.HeaderHash
}

// NewSyncState creates an empty SyncState.
func NewSyncState() *SyncState {
	return &SyncState{
		PotentialBlocks:  make(map[uint32]chan struct{}),
		PotentialHeaders: make(map[uint32]core.HeaderHash),
	}
}

// Reset clears all sync-scoped maps (spec.md §3 "Lifecycle").
func (s *SyncState) Reset() {
	s.HeaderHashes = nil
	s.HeaderHashesErr = false
	s.ProofHashes = nil
	s.PotentialBlocks = make(map[uint32]chan struct{})
	s.PotentialHeaders = make(map[uint32]core.HeaderHash)
}

// AwaitHeight registers (if not already present) a signal channel for
// height and returns it, so a caller can block on potential_blocks_received
// being set for that height (spec.md §4.1 Phase C/D pipelining).
func (s *SyncState) AwaitHeight(height uint32) chan struct{} {
	ch, ok := s.PotentialBlocks[height]
	if !ok {
		ch = make(chan struct{})
		s.PotentialBlocks[height] = ch
	}
	return ch
}

// SignalHeight marks height's signal set and records its header hash
// (invariant 5: "potential_blocks_received[h].set() ⇒
// potential_header_hashes[h] is populated"). Safe to call more than once.
func (s *SyncState) SignalHeight(height uint32, hash core.HeaderHash) {
	s.PotentialHeaders[height] = hash
	ch := s.AwaitHeight(height)
	select {
	case <-ch:
		// already closed
	default:
		close(ch)
	}
}

// EvictionMargin is the steady-state cache horizon from spec.md §4.3
// invariant 3: committed entries older than tip-100 are evictable.
const EvictionMargin = 100

// BlockFinished implements _block_finished (spec.md §4.3): record's
// prev_hash must already be committed and additions/removals populated.
// It submits the record to sm, interprets the result, evicts the
// steady-state cache horizon on ADDED_TO_HEAD, and returns every cached
// child hash waiting on record.Hash so the header handler can continue
// processing them in the same loop turn (spec.md §4.2 step 7) instead of
// recursing.
func BlockFinished(cache *Cache, sm core.StateManager, emitter *events.Emitter, record *core.BlockRecord, header *core.HeaderBlock) []core.HeaderHash {
	result, err := sm.ReceiveBlock(record, header)
	if err != nil {
		log.Printf("[walletsync] receive_block height=%d hash=%s error: %v", record.Height, record.Hash, err)
		return nil
	}

	switch result {
	case core.Disconnected, core.Invalid:
		log.Printf("[walletsync] receive_block height=%d hash=%s rejected: %s", record.Height, record.Hash, result)
		cache.Delete(record.Hash)
		return nil
	case core.AlreadyHave:
		return nil
	case core.AddedAsOrphan:
		// Keep cached; no successor processing unless one is queued below.
	case core.AddedToHead:
		cache.Delete(record.Hash)
		if !sm.SyncMode() {
			cache.EvictOlderThan(record.Height, EvictionMargin)
		}
		if emitter != nil {
			emitter.Emit(events.Event{Type: events.EventBlockAdded, Height: record.Height})
		}
	}

	return cache.PopFuture(record.Hash)
}
