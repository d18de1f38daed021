package walletsync

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/network"
)

// fakeIntroducerServer accepts connections until the listener closes and
// answers every request_peers on each with a fixed peer list.
func fakeIntroducerServer(t *testing.T, ln net.Listener, want []core.PeerInfo) {
	t.Helper()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				peer := network.NewPeer("client", conn.RemoteAddr().String(), conn)
				for {
					msg, err := peer.Receive()
					if err != nil {
						return
					}
					if msg.Type != network.MsgRequestPeers {
						continue
					}
					payload, _ := json.Marshal(network.RespondPeers{Peers: want})
					if err := peer.Send(network.Message{Type: network.MsgRespondPeers, Payload: payload}); err != nil {
						return
					}
				}
			}()
		}
	}()
}

func TestNetworkIntroducerStartFetchesPeers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	want := []core.PeerInfo{{ID: "full1", Host: "10.0.0.5", Port: 8444, FullNode: true}}
	fakeIntroducerServer(t, ln, want)

	n := &NetworkIntroducer{Addr: ln.Addr().String(), RefreshInterval: time.Hour}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer n.Stop()

	got := n.Peers()
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("Peers() = %+v, want %+v", got, want)
	}
}

func TestNetworkIntroducerStartFailsWhenUnreachable(t *testing.T) {
	n := &NetworkIntroducer{Addr: "127.0.0.1:1", RefreshInterval: time.Hour}
	if err := n.Start(); err == nil {
		t.Fatal("expected Start to fail against an unreachable address")
		n.Stop()
	}
}

func TestNetworkIntroducerStopIsIdempotent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	fakeIntroducerServer(t, ln, nil)

	n := &NetworkIntroducer{Addr: ln.Addr().String(), RefreshInterval: time.Hour}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	n.Stop()
	n.Stop() // must not panic or double-close
}
