package rpc

import (
	"encoding/json"
	"testing"

	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/internal/testutil"
	"github.com/tolelom/tolwallet/network"
)

func TestHandlerGetSyncStatus(t *testing.T) {
	sm := testutil.NewMemStateManager(true)
	sm.ReceiveBlock(&core.BlockRecord{Hash: core.HeaderHash{1}, Height: 7}, nil)
	node := network.NewNode("n1", "127.0.0.1:0", nil)
	h := NewHandler(sm, node)

	resp := h.Dispatch(Request{JSONRPC: "2.0", ID: 1, Method: "getSyncStatus"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	var status struct {
		SyncMode  bool   `json:"sync_mode"`
		TipHeight uint32 `json:"tip_height"`
		PeerCount int    `json:"peer_count"`
	}
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if status.TipHeight != 7 {
		t.Fatalf("tip_height = %d, want 7", status.TipHeight)
	}
	if status.PeerCount != 0 {
		t.Fatalf("peer_count = %d, want 0", status.PeerCount)
	}
}

func TestHandlerGetResendQueueDepth(t *testing.T) {
	sm := testutil.NewMemStateManager(true)
	sm.TxStore().(*testutil.MemTxStore).Add(&core.TransactionRecord{ID: "tx1", SpendBundle: &core.SpendBundle{}})
	sm.ActionStore().(*testutil.MemActionStore).Add(&core.WalletAction{Name: core.ActionRequestGenerator})

	h := NewHandler(sm, network.NewNode("n1", "127.0.0.1:0", nil))
	resp := h.Dispatch(Request{JSONRPC: "2.0", ID: 1, Method: "getResendQueueDepth"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var depth struct {
		PendingTransactions int `json:"pending_transactions"`
		PendingActions      int `json:"pending_actions"`
	}
	if err := json.Unmarshal(data, &depth); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if depth.PendingTransactions != 1 || depth.PendingActions != 1 {
		t.Fatalf("depth = %+v, want 1/1", depth)
	}
}

func TestHandlerUnknownMethod(t *testing.T) {
	h := NewHandler(testutil.NewMemStateManager(true), network.NewNode("n1", "127.0.0.1:0", nil))
	resp := h.Dispatch(Request{JSONRPC: "2.0", ID: 1, Method: "doesNotExist"})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected CodeMethodNotFound, got %+v", resp.Error)
	}
}
