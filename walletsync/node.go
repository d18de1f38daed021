package walletsync

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"

	"github.com/tolelom/tolwallet/config"
	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/events"
	"github.com/tolelom/tolwallet/network"
)

// BackupDecision records how Start resolved the wallet's backup state
// (spec.md §4.6, §9).
type BackupDecision int

const (
	BackupNewWallet BackupDecision = iota
	BackupSkipped
	BackupImported
)

// resolveBackupDecision implements spec.md §4.6's start() reconciliation.
// spec.md §9 flags the original's "backup_initialized is None" check as a
// likely typo for "is False"; under the strict reading applied here, "not
// initialized and no explicit skip/import instruction" always needs a user
// decision -- it is never silently treated as "do not send".
func resolveBackupDecision(newWallet bool, backupFile *string, skipBackupImport bool) (BackupDecision, error) {
	if newWallet {
		return BackupNewWallet, nil
	}
	if skipBackupImport {
		return BackupSkipped, nil
	}
	if backupFile != nil {
		return BackupImported, nil
	}
	return 0, ErrNeedsBackupDecision
}

// Engine is the lifecycle facade spec.md §4.6 describes: it wires the
// cache, sampler, header handler, orchestrator, resend loop, and peer
// policy together behind start/close/await_closed.
type Engine struct {
	Config     *config.Config
	Keychain   core.Keychain
	Network    *network.Node
	Introducer core.IntroducerPeers
	Emitter    *events.Emitter

	// OpenStateManager opens the per-key persistent state-manager database
	// (spec.md §4.6: "open the per-key state-manager database"); out of
	// scope to implement generically here since schema/location policy
	// belongs to the state manager, not this engine.
	OpenStateManager func(fingerprint uint32) (core.StateManager, error)

	mu       sync.Mutex
	sm       core.StateManager
	key      core.KeyInfo
	shutdown chan struct{}

	mailbox      *Mailbox
	cache        *Cache
	sync         *SyncState
	handler      *HeaderHandler
	orchestrator *Orchestrator
	resender     *Resender
	policy       *PeerPolicy

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Start implements spec.md §4.6's start(): pick a key, open the
// corresponding state manager, resolve the backup decision, wire every
// component, register network handlers, and spawn the peer-check task.
//
// backupStartHeight is the start_height already recorded in the backup
// file, pre-parsed by the caller -- parsing the backup file itself is out
// of scope here (spec.md §1 Non-goals), but spec.md §4.6 still requires
// start() to floor it by start_height_buffer and carry it into the sync
// engine. Ignored unless the backup decision is BackupImported.
func (e *Engine) Start(fingerprint *uint32, newWallet bool, backupFile *string, skipBackupImport bool, backupStartHeight uint32) error {
	decision, err := resolveBackupDecision(newWallet, backupFile, skipBackupImport)
	if err != nil {
		return err
	}

	var orchestratorBackupStartHeight uint32
	if decision == BackupImported {
		if backupStartHeight > e.Config.StartHeightBuffer {
			orchestratorBackupStartHeight = backupStartHeight - e.Config.StartHeightBuffer
		}
	}

	key, err := e.Keychain.Select(fingerprint)
	if err == core.ErrNoKey {
		return ErrNoKey
	}
	if err != nil {
		return err
	}
	sm, err := e.OpenStateManager(key.Fingerprint)
	if err != nil {
		return fmt.Errorf("open state manager: %w", err)
	}

	e.mu.Lock()
	e.key = key
	e.sm = sm
	e.shutdown = make(chan struct{})
	e.cache = NewCache()
	e.sync = NewSyncState()
	e.mailbox = NewMailbox(256)
	e.handler = &HeaderHandler{Cache: e.cache, Sync: e.sync, SM: sm, Sender: e.Network, Emitter: e.Emitter}
	e.orchestrator = &Orchestrator{
		Cache:             e.cache,
		Sync:              e.sync,
		SM:                sm,
		Sender:            e.Network,
		Handler:           e.handler,
		Mailbox:           e.mailbox,
		Emitter:           e.Emitter,
		NumSyncBatches:    e.Config.NumSyncBatches,
		StartHeightBuffer: e.Config.StartHeightBuffer,
		BackupStartHeight: orchestratorBackupStartHeight,
		Shutdown:          e.shutdown,
	}
	e.resender = &Resender{SM: sm, Sender: e.Network, Live: e}
	e.policy = &PeerPolicy{
		Pinned:     e.Config.FullNodePeer,
		Node:       e.Network,
		Introducer: e.Introducer,
		Shutdown:   e.shutdown,
	}
	e.mu.Unlock()

	e.registerHandlers()
	go e.mailbox.Run()

	if e.Config.FullNodePeer != nil {
		addr := net.JoinHostPort(e.Config.FullNodePeer.Host, strconv.Itoa(e.Config.FullNodePeer.Port))
		if _, err := e.Network.AddFullNodePeer(addr, addr); err != nil {
			log.Printf("[walletsync] connect pinned full node %s: %v", addr, err)
		} else {
			e.HandlePeerConnected(addr)
		}
	} else if e.Introducer != nil {
		if err := e.Introducer.Start(); err != nil {
			log.Printf("[walletsync] introducer start: %v", err)
		}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.policy.Run()
	}()
	return nil
}

// registerHandlers wires the network node's dispatch table to this
// engine's components, posting every handler invocation through the
// mailbox so state mutation stays on the single actor goroutine.
func (e *Engine) registerHandlers() {
	e.Network.Handle(network.MsgRespondHeader, func(peer *network.Peer, msg network.Message) {
		var resp network.RespondHeader
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			log.Printf("[walletsync] decode respond_header: %v", err)
			return
		}
		e.mailbox.Send(func() { _ = e.handler.HandleRespondHeader(peer.ID, &resp) })
	})
	e.Network.Handle(network.MsgRespondAllHeaderHashes, func(peer *network.Peer, msg network.Message) {
		var resp network.RespondAllHeaderHashes
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			log.Printf("[walletsync] decode respond_all_header_hashes: %v", err)
			return
		}
		e.mailbox.Send(func() { e.orchestrator.HandleRespondAllHeaderHashes(&resp) })
	})
	e.Network.Handle(network.MsgRejectAllHeaderHashesAfter, func(peer *network.Peer, msg network.Message) {
		var resp network.RejectAllHeaderHashesAfter
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			log.Printf("[walletsync] decode reject_all_header_hashes_after: %v", err)
			return
		}
		e.mailbox.Send(func() { e.orchestrator.HandleRejectAllHeaderHashesAfter(&resp) })
	})
	e.Network.Handle(network.MsgRespondAllProofHashes, func(peer *network.Peer, msg network.Message) {
		var resp network.RespondAllProofHashes
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			log.Printf("[walletsync] decode respond_all_proof_hashes: %v", err)
			return
		}
		e.mailbox.Send(func() { e.orchestrator.HandleRespondAllProofHashes(&resp) })
	})
}

// TriggerSync runs one orchestrator._sync attempt against peerID, then the
// resend loop (spec.md §4.5: "implicitly each time the orchestrator
// completes"). Intended to be called from a periodic tip-check or an
// explicit peer push, in its own goroutine.
func (e *Engine) TriggerSync(peerID string) error {
	e.mu.Lock()
	o := e.orchestrator
	r := e.resender
	e.mu.Unlock()
	if o == nil {
		return fmt.Errorf("walletsync: engine not started")
	}
	err := o.RunSync(peerID)
	if err != nil {
		log.Printf("[walletsync] sync with %s failed: %v", peerID, err)
	}
	r.Run()
	return err
}

// HandlePeerConnected triggers the resend loop for a newly connected peer
// (spec.md §4.5 "_on_connect") and, since a full-node connection is what
// the sync state machine waits on, a sync attempt against it (spec.md §2
// "Data flow": "A periodic tip check or a push from the peer drives the
// header handler").
func (e *Engine) HandlePeerConnected(peerID string) {
	e.mu.Lock()
	r := e.resender
	e.mu.Unlock()
	if r != nil {
		go r.Run()
	}
	go func() { _ = e.TriggerSync(peerID) }()
	if e.Emitter != nil {
		e.Emitter.Emit(events.Event{Type: events.EventPeerConnected, Data: map[string]any{"peer_id": peerID}})
	}
}

// StateManager returns the engine's current state manager, or nil before
// Start or after AwaitClosed. Exposed for callers (e.g. the RPC status
// handler) that need read-only access alongside the engine.
func (e *Engine) StateManager() core.StateManager {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sm
}

// HandlePendingTransaction triggers the resend loop in response to an
// external "pending tx" notification from the state manager (spec.md §4.5
// "_pending_tx_handler").
func (e *Engine) HandlePendingTransaction() {
	e.mu.Lock()
	r := e.resender
	e.mu.Unlock()
	if r != nil {
		go r.Run()
	}
	if e.Emitter != nil {
		e.Emitter.Emit(events.Event{Type: events.EventPendingTransaction})
	}
}

// ShuttingDown implements Liveness.
func (e *Engine) ShuttingDown() bool {
	e.mu.Lock()
	ch := e.shutdown
	e.mu.Unlock()
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// StateManagerAlive implements Liveness.
func (e *Engine) StateManagerAlive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sm != nil
}

// Close sets shut_down, stops the introducer, closes the mailbox, and
// issues an async peer-close task that stops the network node (spec.md §4.6
// "close"). It does not close the state manager's store.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		ch := e.shutdown
		mb := e.mailbox
		e.mu.Unlock()
		if ch != nil {
			close(ch)
		}
		if e.Introducer != nil {
			e.Introducer.Stop()
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.Network.Stop()
		}()
		if mb != nil {
			mb.Close()
		}
	})
}

// AwaitClosed waits for outstanding close tasks and clears the
// state-manager handle (spec.md §4.6 "await_closed").
func (e *Engine) AwaitClosed() {
	e.wg.Wait()
	e.mu.Lock()
	e.sm = nil
	e.mu.Unlock()
}
