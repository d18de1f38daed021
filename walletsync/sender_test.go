package walletsync

import (
	"sync"

	"github.com/tolelom/tolwallet/network"
)

// fakeSender is an in-memory Sender for tests: it records every message
// sent instead of touching a real network.Node.
type fakeSender struct {
	mu       sync.Mutex
	sent     []sentMessage
	fullNode []string
}

type sentMessage struct {
	peerID string
	msg    network.Message
}

func newFakeSender(fullNode ...string) *fakeSender {
	return &fakeSender{fullNode: fullNode}
}

func (f *fakeSender) SendTo(peerID string, msg network.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{peerID, msg})
	return nil
}

func (f *fakeSender) FullNodePeerIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fullNode...)
}

func (f *fakeSender) messagesOfType(typ network.MsgType) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.msg.Type == typ {
			out = append(out, m)
		}
	}
	return out
}
