package rpc

import (
	"fmt"

	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/network"
)

// Handler holds all dependencies needed to serve RPC methods. It only
// exposes local wallet-sync status (sync height, peer count, resend queue
// depth) for operators and tests -- it never serves blocks or accepts
// chain data from callers, so it doesn't reintroduce the "serving blocks
// to others" non-goal.
type Handler struct {
	sm      core.StateManager
	network *network.Node
}

// NewHandler creates an RPC Handler.
func NewHandler(sm core.StateManager, node *network.Node) *Handler {
	return &Handler{sm: sm, network: node}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getSyncStatus":
		return okResponse(req.ID, h.syncStatus())

	case "getPeerCount":
		return okResponse(req.ID, len(h.network.FullNodePeerIDs()))

	case "getResendQueueDepth":
		return h.resendQueueDepth(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) syncStatus() map[string]any {
	lca := h.sm.LCA()
	var height uint32
	if record, ok := h.sm.BlockRecord(lca); ok {
		height = record.Height
	}
	return map[string]any{
		"sync_mode":  h.sm.SyncMode(),
		"tip_height": height,
		"tip_hash":   lca,
		"peer_count": len(h.network.FullNodePeerIDs()),
	}
}

func (h *Handler) resendQueueDepth(req Request) Response {
	notSent, err := h.sm.TxStore().GetNotSent()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	pending, err := h.sm.ActionStore().GetAllPendingActions()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"pending_transactions": len(notSent),
		"pending_actions":      len(pending),
	})
}
