package walletsync

import (
	"net"
	"strconv"
	"time"

	"github.com/tolelom/tolwallet/config"
	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/network"
)

// PeerCheckInterval and PeerCheckIterations implement spec.md §4.6: "A
// periodic task (every 180 s, up to 5 iterations) checks whether the
// pinned peer is connected."
const (
	PeerCheckInterval   = 180 * time.Second
	PeerCheckIterations = 5
)

// PeerLister is the subset of *network.Node the peer policy needs. A
// separate interface (rather than a concrete *network.Node field) lets
// tests exercise the policy without dialing real connections.
type PeerLister interface {
	FullNodePeers() []*network.Peer
	ClosePeer(id string)
}

// PeerPolicy implements the "only one full node" policy (spec.md §4.6): if
// a full node is pinned in configuration, it periodically confirms that
// peer is connected, closes any other full-node connections, and stops
// peer discovery once the pinned peer is reachable. With no pinned peer,
// Run is a no-op and discovery is left to run indefinitely.
type PeerPolicy struct {
	Pinned     *config.FullNodePeer
	Node       PeerLister
	Introducer core.IntroducerPeers
	Shutdown   <-chan struct{}
}

// Run executes the periodic check for up to PeerCheckIterations rounds,
// returning early if Shutdown closes.
func (p *PeerPolicy) Run() {
	if p.Pinned == nil {
		return
	}
	for i := 0; i < PeerCheckIterations; i++ {
		select {
		case <-time.After(PeerCheckInterval):
		case <-p.Shutdown:
			return
		}
		p.checkOnce()
	}
}

// checkOnce runs a single round of the check, split out so package tests
// can call it without waiting out PeerCheckInterval.
func (p *PeerPolicy) checkOnce() {
	var pinnedID string
	pinnedConnected := false
	for _, peer := range p.Node.FullNodePeers() {
		if p.matchesPinned(peer) {
			pinnedConnected = true
			pinnedID = peer.ID
			break
		}
	}
	if !pinnedConnected {
		return
	}

	if p.Introducer != nil {
		p.Introducer.Stop()
	}
	for _, peer := range p.Node.FullNodePeers() {
		if peer.ID != pinnedID {
			p.Node.ClosePeer(peer.ID)
		}
	}
}

// matchesPinned reports whether peer's address matches the pinned host
// (literally, or via the host's resolved IPs), per spec.md §4.6.
func (p *PeerPolicy) matchesPinned(peer *network.Peer) bool {
	port := strconv.Itoa(p.Pinned.Port)
	if peer.Addr == net.JoinHostPort(p.Pinned.Host, port) {
		return true
	}
	ips, err := net.LookupHost(p.Pinned.Host)
	if err != nil {
		return false
	}
	for _, ip := range ips {
		if peer.Addr == net.JoinHostPort(ip, port) {
			return true
		}
	}
	return false
}
