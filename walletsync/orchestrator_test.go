package walletsync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/internal/testutil"
	"github.com/tolelom/tolwallet/network"
)

// scriptedPeer answers an Orchestrator's requests with canned responses
// derived from a real chain of testHeaderBlocks, driving RunSync through a
// real mailbox without any actual network I/O.
type scriptedPeer struct {
	t       *testing.T
	o       *Orchestrator
	hashes  []core.HeaderHash
	headers map[core.HeaderHash]*core.HeaderBlock
	proofs  []core.ProofHashTriple
	reject  bool

	headerRequestCount int
}

func (p *scriptedPeer) FullNodePeerIDs() []string { return []string{"peer1"} }

func (p *scriptedPeer) SendTo(peerID string, msg network.Message) error {
	switch msg.Type {
	case network.MsgRequestAllHeaderHashesAfter:
		if p.reject {
			p.o.Mailbox.Send(func() {
				p.o.HandleRejectAllHeaderHashesAfter(&network.RejectAllHeaderHashesAfter{Reason: "no"})
			})
			return nil
		}
		p.o.Mailbox.Send(func() {
			p.o.HandleRespondAllHeaderHashes(&network.RespondAllHeaderHashes{Hashes: p.hashes})
		})
	case network.MsgRequestAllProofHashes:
		p.o.Mailbox.Send(func() {
			p.o.HandleRespondAllProofHashes(&network.RespondAllProofHashes{Proofs: p.proofs})
		})
	case network.MsgRequestHeader:
		p.headerRequestCount++
		var req network.RequestHeader
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			p.t.Fatalf("unmarshal request_header: %v", err)
		}
		hb, ok := p.headers[req.HeaderHash]
		if !ok {
			p.t.Fatalf("scriptedPeer: no header for requested hash at height %d", req.Height)
		}
		filter := core.NewTransactionsFilter(nil)
		p.o.Mailbox.Send(func() {
			_ = p.o.Handler.HandleRespondHeader(peerID, &network.RespondHeader{
				HeaderBlock:        hb,
				TransactionsFilter: filter.Bytes(),
			})
		})
	}
	return nil
}

// buildChain returns n testHeaderBlocks chained from a zero-hash genesis,
// their hashes in height order, and a hash->header lookup table.
func buildChain(n int) ([]*core.HeaderBlock, []core.HeaderHash, map[core.HeaderHash]*core.HeaderBlock) {
	headers := make([]*core.HeaderBlock, n)
	hashes := make([]core.HeaderHash, n)
	byHash := make(map[core.HeaderHash]*core.HeaderBlock, n)

	var prev core.HeaderHash
	for h := 0; h < n; h++ {
		hb := testHeaderBlock(uint32(h), prev)
		headers[h] = hb
		hashes[h] = hb.Hash()
		byHash[hashes[h]] = hb
		prev = hashes[h]
	}
	return headers, hashes, byHash
}

func newTestOrchestrator(sm core.StateManager, peer *scriptedPeer, numSyncBatches int, startHeightBuffer uint32) (*Orchestrator, *Mailbox) {
	mb := NewMailbox(256)
	cache := NewCache()
	sync := NewSyncState()
	handler := &HeaderHandler{Cache: cache, Sync: sync, SM: sm, Sender: peer}
	o := &Orchestrator{
		Cache:             cache,
		Sync:              sync,
		SM:                sm,
		Sender:            peer,
		Handler:           handler,
		Mailbox:           mb,
		NumSyncBatches:    numSyncBatches,
		StartHeightBuffer: startHeightBuffer,
		Shutdown:          make(chan struct{}),
	}
	peer.o = o
	go mb.Run()
	return o, mb
}

// Fresh wallet, no start-height buffer: starting_height lands exactly on
// tip_height, so Phase D has nothing left to do and only the synthesized
// skeleton prefix (Phase C) is committed.
func TestRunSyncSkeletonPrefixOnly(t *testing.T) {
	const n = 20
	_, hashes, byHash := buildChain(n)
	sm := testutil.NewMemStateManager(true)
	if _, err := sm.ReceiveBlock(&core.BlockRecord{Hash: hashes[0], Height: 0}, nil); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}

	peer := &scriptedPeer{t: t, hashes: hashes, headers: byHash, proofs: makeProofHashes(n)}
	o, mb := newTestOrchestrator(sm, peer, 4, 0)
	defer mb.Close()

	if err := o.RunSync("peer1"); err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	wantTip := uint32(n) - TrailingTipMargin
	if _, ok := sm.BlockRecord(hashes[wantTip]); !ok {
		t.Fatalf("expected height %d committed", wantTip)
	}
	if sm.SyncMode() {
		t.Fatal("sync mode should be cleared after RunSync returns")
	}
}

// A start-height buffer forces Phase D to run and pipeline the remaining
// headers up to tip_height.
func TestRunSyncForwardPipelineReachesTip(t *testing.T) {
	const n = 30
	_, hashes, byHash := buildChain(n)
	sm := testutil.NewMemStateManager(true)
	if _, err := sm.ReceiveBlock(&core.BlockRecord{Hash: hashes[0], Height: 0}, nil); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}

	peer := &scriptedPeer{t: t, hashes: hashes, headers: byHash, proofs: makeProofHashes(n)}
	o, mb := newTestOrchestrator(sm, peer, 4, 10)
	defer mb.Close()

	if err := o.RunSync("peer1"); err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	wantTip := uint32(n) - TrailingTipMargin
	if _, ok := sm.BlockRecord(hashes[wantTip]); !ok {
		t.Fatalf("expected height %d committed", wantTip)
	}
}

// spec.md §8: running _sync to completion twice in a row is a no-op on the
// second run (fork point equals tip). This also exercises the
// fork_point_height == 0 guard on the new-wallet starting-height override
// (wallet_node.py line 419): without it, the second run's starting_height
// would be forced back down to tip_height - start_height_buffer even
// though the fork point already reached the tip, triggering pointless
// re-requests for already-committed headers.
func TestRunSyncSecondRunIsNoOp(t *testing.T) {
	const n = 30
	_, hashes, byHash := buildChain(n)
	sm := testutil.NewMemStateManager(true)
	if _, err := sm.ReceiveBlock(&core.BlockRecord{Hash: hashes[0], Height: 0}, nil); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}

	peer := &scriptedPeer{t: t, hashes: hashes, headers: byHash, proofs: makeProofHashes(n)}
	o, mb := newTestOrchestrator(sm, peer, 4, 10)
	defer mb.Close()

	if err := o.RunSync("peer1"); err != nil {
		t.Fatalf("first RunSync: %v", err)
	}
	wantTip := uint32(n) - TrailingTipMargin
	if _, ok := sm.BlockRecord(hashes[wantTip]); !ok {
		t.Fatalf("expected height %d committed after the first run", wantTip)
	}
	lcaAfterFirst := sm.LCA()

	peer.headerRequestCount = 0
	if err := o.RunSync("peer1"); err != nil {
		t.Fatalf("second RunSync: %v", err)
	}
	if sm.LCA() != lcaAfterFirst {
		t.Fatal("second RunSync changed the already-synced chain tip")
	}
	if peer.headerRequestCount != 0 {
		t.Fatalf("second RunSync issued %d request_header messages, want 0 (fork point already equals tip)", peer.headerRequestCount)
	}
}

func TestRunSyncSyncRejectedPropagates(t *testing.T) {
	const n = 10
	_, hashes, byHash := buildChain(n)
	sm := testutil.NewMemStateManager(true)
	peer := &scriptedPeer{t: t, hashes: hashes, headers: byHash, reject: true}
	o, mb := newTestOrchestrator(sm, peer, 2, 0)
	defer mb.Close()

	if err := o.RunSync("peer1"); err != ErrSyncRejected {
		t.Fatalf("RunSync = %v, want ErrSyncRejected", err)
	}
}

func TestRunSyncEmptySkeletonTimesOut(t *testing.T) {
	sm := testutil.NewMemStateManager(true)
	peer := &scriptedPeer{t: t, hashes: nil}
	o, mb := newTestOrchestrator(sm, peer, 2, 0)
	defer mb.Close()

	if err := o.RunSync("peer1"); err != ErrTimeout {
		t.Fatalf("RunSync = %v, want ErrTimeout", err)
	}
}

func TestRunSyncSampleValidationFailurePreventsCommit(t *testing.T) {
	const n = 20
	_, hashes, byHash := buildChain(n)
	sm := testutil.NewMemStateManager(true)
	if _, err := sm.ReceiveBlock(&core.BlockRecord{Hash: hashes[0], Height: 0}, nil); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}
	sm.ValidateFn = func([]core.ProofHashTriple, []uint32, map[uint32]*core.HeaderBlock, []core.HeaderHash) (bool, error) {
		return false, nil
	}

	peer := &scriptedPeer{t: t, hashes: hashes, headers: byHash, proofs: makeProofHashes(n)}
	o, mb := newTestOrchestrator(sm, peer, 4, 0)
	defer mb.Close()

	if err := o.RunSync("peer1"); err != ErrSampleValidationFailed {
		t.Fatalf("RunSync = %v, want ErrSampleValidationFailed", err)
	}
	wantTip := uint32(n) - TrailingTipMargin
	if _, ok := sm.BlockRecord(hashes[wantTip]); ok {
		t.Fatal("no block past the fork point should have committed after sample rejection")
	}
}

// Shutdown during sync must return promptly (spec.md §8 scenario 5)
// without reporting an error.
func TestRunSyncCooperativeShutdown(t *testing.T) {
	origTimeout := PhaseTimeout
	PhaseTimeout = 200 * time.Millisecond
	defer func() { PhaseTimeout = origTimeout }()

	sm := testutil.NewMemStateManager(true)
	peer := &scriptedPeer{t: t, hashes: nil} // never responds
	shutdown := make(chan struct{})
	o, mb := newTestOrchestrator(sm, peer, 2, 0)
	o.Shutdown = shutdown
	defer mb.Close()

	close(shutdown)
	start := time.Now()
	if err := o.RunSync("peer1"); err != nil {
		t.Fatalf("RunSync = %v, want nil on shutdown", err)
	}
	if time.Since(start) > PhaseTimeout {
		t.Fatal("RunSync should have returned promptly on shutdown, not waited out the phase timeout")
	}
}
