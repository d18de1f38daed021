package walletsync

import (
	"log"

	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/network"
)

// Liveness reports whether the engine's external collaborators are still
// alive, so the resend loop can bail mid-broadcast (spec.md §4.5: "check
// the shut_down flag and the liveness of state manager and server between
// every emitted message").
type Liveness interface {
	ShuttingDown() bool
	StateManagerAlive() bool
}

// Resender implements the resend & action loop (spec.md §4.5): triggered on
// new-peer-connect, on a pending-transaction notification from the state
// manager, and once a sync run completes. It broadcasts unconfirmed
// transactions and pending request_generator actions to every known
// full-node peer, checking liveness before every send so a shutdown mid
// -broadcast stops promptly rather than best-effort-flushing the rest.
type Resender struct {
	SM     core.StateManager
	Sender Sender
	Live   Liveness
}

// Run enumerates tx_store.get_not_sent() and action_store.get_all_pending_actions(),
// broadcasting SendTransaction and RequestGenerator messages respectively.
// Delivery is at-least-once by design (spec.md §4.5); the transport
// deduplicates by sent_to, not this loop.
func (r *Resender) Run() {
	r.resendTransactions()
	r.resendActions()
}

func (r *Resender) resendTransactions() {
	records, err := r.SM.TxStore().GetNotSent()
	if err != nil {
		log.Printf("[walletsync] tx_store.get_not_sent: %v", err)
		return
	}
	for _, record := range records {
		if !record.IsResendCandidate() {
			continue
		}
		for _, peerID := range r.Sender.FullNodePeerIDs() {
			if !r.alive() {
				return
			}
			sendMessage(r.Sender, peerID, network.MsgSendTransaction, network.SendTransaction{Bundle: record.SpendBundle})
			if err := r.SM.TxStore().AddSentTo(record.ID, peerID); err != nil {
				log.Printf("[walletsync] tx_store.add_sent_to %s/%s: %v", record.ID, peerID, err)
			}
		}
	}
}

func (r *Resender) resendActions() {
	actions, err := r.SM.ActionStore().GetAllPendingActions()
	if err != nil {
		log.Printf("[walletsync] action_store.get_all_pending_actions: %v", err)
		return
	}
	for _, action := range actions {
		if action.Name != core.ActionRequestGenerator {
			continue
		}
		for _, peerID := range r.Sender.FullNodePeerIDs() {
			if !r.alive() {
				return
			}
			sendMessage(r.Sender, peerID, network.MsgRequestGenerator, network.RequestGenerator{
				Height:     action.Data.Height,
				HeaderHash: action.Data.HeaderHash,
			})
		}
	}
}

func (r *Resender) alive() bool {
	if r.Live == nil {
		return true
	}
	return !r.Live.ShuttingDown() && r.Live.StateManagerAlive()
}
