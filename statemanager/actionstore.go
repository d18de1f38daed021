package statemanager

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/storage"
)

const prefixAction = "act:" // act:<seq be64> -> JSON core.WalletAction

// ActionStore implements core.ActionStore over a storage.DB.
type ActionStore struct {
	db  storage.DB
	mu  sync.Mutex
	seq uint64
}

func newActionStore(db storage.DB) *ActionStore {
	return &ActionStore{db: db}
}

func actionKey(seq uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return append([]byte(prefixAction), b[:]...)
}

// Add persists a new pending action. Only tests call it; spec.md §3 leaves
// action origination outside this core.
func (s *ActionStore) Add(action *core.WalletAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal wallet action: %w", err)
	}
	s.seq++
	return s.db.Set(actionKey(s.seq), data)
}

// GetAllPendingActions implements core.ActionStore.
func (s *ActionStore) GetAllPendingActions() ([]*core.WalletAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.db.NewIterator([]byte(prefixAction))
	defer it.Release()

	var out []*core.WalletAction
	for it.Next() {
		var action core.WalletAction
		if err := json.Unmarshal(it.Value(), &action); err != nil {
			return nil, fmt.Errorf("unmarshal wallet action: %w", err)
		}
		out = append(out, &action)
	}
	return out, it.Error()
}
