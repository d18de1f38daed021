package walletsync

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/network"
)

// NetworkIntroducer is the reference core.IntroducerPeers implementation
// used by cmd/walletnode: spec.md §1 scopes full introducer-protocol design
// out of this repo, so this is deliberately the simplest client that can
// drive the engine end to end -- one connection, a request_peers/
// respond_peers round trip on Start and again on a fixed refresh interval.
type NetworkIntroducer struct {
	Addr            string
	TLS             *tls.Config
	RefreshInterval time.Duration

	mu      sync.Mutex
	peer    *network.Peer
	peers   []core.PeerInfo
	started bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Start connects to the introducer and fetches the initial peer set, then
// spawns a background loop that refreshes it every RefreshInterval.
func (n *NetworkIntroducer) Start() error {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return nil
	}
	peer, err := network.Connect("introducer", n.Addr, n.TLS)
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("connect to introducer %s: %w", n.Addr, err)
	}
	n.peer = peer
	n.started = true
	n.stopCh = make(chan struct{})
	n.mu.Unlock()

	if err := n.refresh(); err != nil {
		return err
	}

	n.wg.Add(1)
	go n.loop()
	return nil
}

func (n *NetworkIntroducer) loop() {
	defer n.wg.Done()
	interval := n.RefreshInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			_ = n.refresh()
		}
	}
}

func (n *NetworkIntroducer) refresh() error {
	n.mu.Lock()
	peer := n.peer
	n.mu.Unlock()
	if peer == nil {
		return fmt.Errorf("introducer not connected")
	}

	payload, err := json.Marshal(network.RequestPeers{})
	if err != nil {
		return err
	}
	if err := peer.Send(network.Message{Type: network.MsgRequestPeers, Payload: payload}); err != nil {
		return err
	}
	msg, err := peer.Receive()
	if err != nil {
		return err
	}
	if msg.Type != network.MsgRespondPeers {
		return fmt.Errorf("unexpected introducer response type %q", msg.Type)
	}
	var resp network.RespondPeers
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return err
	}

	n.mu.Lock()
	n.peers = resp.Peers
	n.mu.Unlock()
	return nil
}

// Stop closes the introducer connection and stops the refresh loop.
func (n *NetworkIntroducer) Stop() {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return
	}
	n.started = false
	close(n.stopCh)
	peer := n.peer
	n.peer = nil
	n.mu.Unlock()

	if peer != nil {
		peer.Close()
	}
	n.wg.Wait()
}

// Peers returns the most recently fetched peer set.
func (n *NetworkIntroducer) Peers() []core.PeerInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]core.PeerInfo, len(n.peers))
	copy(out, n.peers)
	return out
}
