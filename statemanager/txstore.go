package statemanager

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/storage"
)

const prefixTx = "tx:" // tx:<id> -> JSON core.TransactionRecord

// TxStore implements core.TxStore over a storage.DB.
type TxStore struct {
	db storage.DB
	mu sync.Mutex
}

func newTxStore(db storage.DB) *TxStore {
	return &TxStore{db: db}
}

func txKey(id string) []byte {
	return append([]byte(prefixTx), id...)
}

// Put persists a transaction record, for use by the wallet's transaction
// origination path (outside this repo's scope beyond spec.md §3's shape).
func (s *TxStore) Put(record *core.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal transaction record: %w", err)
	}
	return s.db.Set(txKey(record.ID), data)
}

// GetNotSent implements core.TxStore by scanning the tx: prefix.
func (s *TxStore) GetNotSent() ([]*core.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.db.NewIterator([]byte(prefixTx))
	defer it.Release()

	var out []*core.TransactionRecord
	for it.Next() {
		var record core.TransactionRecord
		if err := json.Unmarshal(it.Value(), &record); err != nil {
			return nil, fmt.Errorf("unmarshal transaction record: %w", err)
		}
		if record.IsResendCandidate() {
			out = append(out, &record)
		}
	}
	return out, it.Error()
}

// AddSentTo implements core.TxStore.
func (s *TxStore) AddSentTo(id string, peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.db.Get(txKey(id))
	if err != nil {
		return err
	}
	var record core.TransactionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("unmarshal transaction record: %w", err)
	}
	record.SentTo = append(record.SentTo, peerID)
	updated, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("marshal transaction record: %w", err)
	}
	return s.db.Set(txKey(id), updated)
}
