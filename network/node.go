package network

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// MessageHandler is called for each received message.
type MessageHandler func(peer *Peer, msg Message)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// Node listens for incoming peers and manages outgoing connections. Peers
// are tagged as full-node or not at connect time so the wallet's "only one
// full node" policy (spec.md §4.6) can enumerate and close the right ones.
type Node struct {
	nodeID     string
	listenAddr string
	tlsConfig  *tls.Config // nil => plain TCP
	maxPeers   int

	mu       sync.RWMutex
	peers    map[string]*Peer
	fullNode map[string]bool // peer ID -> is a full node (vs introducer/other)
	handlers map[MsgType]MessageHandler

	listener net.Listener
	stopCh   chan struct{}
}

// NewNode creates a Node that will listen on listenAddr.
// If tlsCfg is non-nil the listener and outgoing connections use TLS.
func NewNode(nodeID, listenAddr string, tlsCfg *tls.Config) *Node {
	return &Node{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		peers:      make(map[string]*Peer),
		fullNode:   make(map[string]bool),
		handlers:   make(map[MsgType]MessageHandler),
		stopCh:     make(chan struct{}),
	}
}

// Handle registers a handler for msg type.
func (n *Node) Handle(typ MsgType, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[typ] = h
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop shuts down the node.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// AddFullNodePeer dials addr and registers the peer as a full node.
func (n *Node) AddFullNodePeer(id, addr string) (*Peer, error) {
	return n.addPeer(id, addr, true)
}

// AddPeer dials addr and registers the peer without marking it a full node
// (e.g. an introducer connection).
func (n *Node) AddPeer(id, addr string) (*Peer, error) {
	return n.addPeer(id, addr, false)
}

func (n *Node) addPeer(id, addr string, fullNode bool) (*Peer, error) {
	peer, err := Connect(id, addr, n.tlsConfig)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.peers[id] = peer
	n.fullNode[id] = fullNode
	n.mu.Unlock()
	go n.readLoop(peer)

	hello, err := json.Marshal(map[string]string{"node_id": n.nodeID})
	if err != nil {
		log.Printf("[network] marshal hello: %v", err)
		return peer, nil
	}
	if err := peer.Send(Message{Type: MsgHello, Payload: hello}); err != nil {
		log.Printf("[network] send hello to %s: %v", id, err)
	}
	return peer, nil
}

// Peer returns the connected peer with the given id, or nil if not found.
func (n *Node) Peer(id string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// SendTo sends msg to the single peer id, returning an error if the peer is
// not connected or the send fails.
func (n *Node) SendTo(id string, msg Message) error {
	peer := n.Peer(id)
	if peer == nil {
		return fmt.Errorf("peer %s not connected", id)
	}
	return peer.Send(msg)
}

// ClosePeer closes and forgets the peer with the given id, if connected.
func (n *Node) ClosePeer(id string) {
	n.mu.Lock()
	peer, ok := n.peers[id]
	delete(n.peers, id)
	delete(n.fullNode, id)
	n.mu.Unlock()
	if ok {
		peer.Close()
	}
}

// FullNodePeers returns the currently connected peers marked as full nodes.
func (n *Node) FullNodePeers() []*Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Peer, 0, len(n.peers))
	for id, p := range n.peers {
		if n.fullNode[id] {
			out = append(out, p)
		}
	}
	return out
}

// FullNodePeerIDs returns the IDs of currently connected full-node peers,
// used by the peer policy (spec.md §4.6) to compare against the pinned
// host/IP.
func (n *Node) FullNodePeerIDs() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.peers))
	for id := range n.peers {
		if n.fullNode[id] {
			out = append(out, id)
		}
	}
	return out
}

// BroadcastToFullNodes sends msg to every connected full-node peer and
// returns the peers it was (attempted to be) sent to.
func (n *Node) BroadcastToFullNodes(msg Message) []*Peer {
	peers := n.FullNodePeers()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			log.Printf("[network] broadcast to %s: %v", p.ID, err)
		}
	}
	return peers
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Printf("[network] accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			log.Printf("[network] max peers (%d) reached, rejecting %s", n.maxPeers, conn.RemoteAddr())
			conn.Close()
			continue
		}
		peer := NewPeer(conn.RemoteAddr().String(), conn.RemoteAddr().String(), conn)
		n.mu.Lock()
		n.peers[peer.ID] = peer
		n.mu.Unlock()
		go n.readLoop(peer)
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[network] readLoop panic from %s: %v", peer.ID, r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID)
		delete(n.fullNode, peer.ID)
		n.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		n.mu.RLock()
		h, ok := n.handlers[msg.Type]
		n.mu.RUnlock()
		if ok {
			h(peer, msg)
		}
	}
}
