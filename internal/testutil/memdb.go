// Package testutil provides in-memory implementations of storage and core
// interfaces for use in tests across the module. Never import this in
// production code.
package testutil

import (
	"strings"
	"sync"

	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/storage"
)

// MemDB is a thread-safe in-memory storage.DB for tests.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDB creates an empty MemDB.
func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return v, nil
}

func (m *MemDB) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = value
	return nil
}

func (m *MemDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemDB) NewIterator(prefix []byte) storage.Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := string(prefix)
	var pairs []kv
	for k, v := range m.data {
		if strings.HasPrefix(k, p) {
			cp := make([]byte, len(v))
			copy(cp, v)
			pairs = append(pairs, kv{k: []byte(k), v: cp})
		}
	}
	return &memIter{pairs: pairs, idx: -1}
}

func (m *MemDB) NewBatch() storage.Batch {
	return &memBatch{db: m}
}

func (m *MemDB) Close() error { return nil }

// memBatch is an in-memory atomic write buffer for MemDB.
type memBatch struct {
	db  *MemDB
	ops []memBatchOp
}

type memBatchOp struct {
	key   string
	value []byte // nil means delete
}

func (b *memBatch) Set(key, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	b.ops = append(b.ops, memBatchOp{string(key), cp})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, memBatchOp{string(key), nil})
}

func (b *memBatch) Reset() { b.ops = nil }

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.value == nil {
			delete(b.db.data, op.key)
		} else {
			b.db.data[op.key] = op.value
		}
	}
	return nil
}

type kv struct{ k, v []byte }

type memIter struct {
	pairs []kv
	idx   int
}

func (it *memIter) Next() bool    { it.idx++; return it.idx < len(it.pairs) }
func (it *memIter) Key() []byte   { return it.pairs[it.idx].k }
func (it *memIter) Value() []byte { return it.pairs[it.idx].v }
func (it *memIter) Release()      {}
func (it *memIter) Error() error  { return nil }

// MemStateManager is an in-memory core.StateManager fake for tests. It does
// no consensus verification: ReceiveBlock reports AlreadyHave for a known
// hash, Disconnected for a non-genesis block whose parent is unknown, and
// AddedToHead otherwise. It tracks just enough bookkeeping for the sync
// engine's tests to assert against.
type MemStateManager struct {
	mu sync.Mutex

	records  map[core.HeaderHash]*core.BlockRecord
	byHeight map[uint32]core.HeaderHash
	lca      core.HeaderHash
	sync     bool
	isNew    bool

	txStore     *MemTxStore
	actionStore *MemActionStore

	// ValidateFn, when set, backs ValidateSelectProofs; defaults to
	// always-accept.
	ValidateFn func(proofs []core.ProofHashTriple, oddHeights []uint32, cached map[uint32]*core.HeaderBlock, hashes []core.HeaderHash) (bool, error)
	// FilterFn, when set, backs GetFilterAdditionsRemovals; defaults to
	// "nothing of interest".
	FilterFn func(record *core.BlockRecord, filter *core.TransactionsFilter) ([]core.CoinID, []core.CoinID, error)
}

// NewMemStateManager creates a MemStateManager with no accepted blocks.
func NewMemStateManager(isNewWallet bool) *MemStateManager {
	return &MemStateManager{
		records:     make(map[core.HeaderHash]*core.BlockRecord),
		byHeight:    make(map[uint32]core.HeaderHash),
		isNew:       isNewWallet,
		txStore:     NewMemTxStore(),
		actionStore: NewMemActionStore(),
	}
}

func (m *MemStateManager) FindForkPointAlternateChain(headerHashes []core.HeaderHash) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var fork uint32
	for h, hash := range headerHashes {
		if existing, ok := m.byHeight[uint32(h)]; ok && existing == hash {
			fork = uint32(h)
			continue
		}
		break
	}
	return fork, nil
}

func (m *MemStateManager) ValidateSelectProofs(proofs []core.ProofHashTriple, oddHeights []uint32, cached map[uint32]*core.HeaderBlock, hashes []core.HeaderHash) (bool, error) {
	if m.ValidateFn != nil {
		return m.ValidateFn(proofs, oddHeights, cached, hashes)
	}
	return true, nil
}

func (m *MemStateManager) ReceiveBlock(record *core.BlockRecord, header *core.HeaderBlock) (core.ReceiveBlockResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.Hash]; ok {
		return core.AlreadyHave, nil
	}
	if !record.PrevHash.IsZero() {
		if _, ok := m.records[record.PrevHash]; !ok && record.Height != 0 {
			return core.Disconnected, nil
		}
	}
	m.records[record.Hash] = record
	m.byHeight[record.Height] = record.Hash
	m.lca = record.Hash
	return core.AddedToHead, nil
}

func (m *MemStateManager) GetFilterAdditionsRemovals(record *core.BlockRecord, filter *core.TransactionsFilter) ([]core.CoinID, []core.CoinID, error) {
	if m.FilterFn != nil {
		return m.FilterFn(record, filter)
	}
	return nil, nil, nil
}

func (m *MemStateManager) BlockRecord(hash core.HeaderHash) (*core.BlockRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[hash]
	return r, ok
}

func (m *MemStateManager) LCA() core.HeaderHash {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lca
}

func (m *MemStateManager) HeightToHash(height uint32) (core.HeaderHash, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.byHeight[height]
	return h, ok
}

func (m *MemStateManager) SyncMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sync
}

func (m *MemStateManager) SetSyncMode(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sync = v
}

func (m *MemStateManager) NewWallet() bool { return m.isNew }

func (m *MemStateManager) TxStore() core.TxStore { return m.txStore }

func (m *MemStateManager) ActionStore() core.ActionStore { return m.actionStore }

// MemTxStore is an in-memory core.TxStore fake.
type MemTxStore struct {
	mu      sync.Mutex
	records []*core.TransactionRecord
	sentTo  map[string][]string
}

// NewMemTxStore creates an empty MemTxStore.
func NewMemTxStore() *MemTxStore {
	return &MemTxStore{sentTo: make(map[string][]string)}
}

// Add appends a record, for test setup.
func (s *MemTxStore) Add(r *core.TransactionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

func (s *MemTxStore) GetNotSent() ([]*core.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.TransactionRecord, 0, len(s.records))
	for _, r := range s.records {
		if r.IsResendCandidate() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemTxStore) AddSentTo(id string, peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentTo[id] = append(s.sentTo[id], peerID)
	for _, r := range s.records {
		if r.ID == id {
			r.SentTo = append(r.SentTo, peerID)
		}
	}
	return nil
}

// MemActionStore is an in-memory core.ActionStore fake.
type MemActionStore struct {
	mu      sync.Mutex
	pending []*core.WalletAction
}

// NewMemActionStore creates an empty MemActionStore.
func NewMemActionStore() *MemActionStore {
	return &MemActionStore{}
}

// Add appends a pending action, for test setup.
func (s *MemActionStore) Add(a *core.WalletAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, a)
}

func (s *MemActionStore) GetAllPendingActions() ([]*core.WalletAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.WalletAction, len(s.pending))
	copy(out, s.pending)
	return out, nil
}

// MemKeychain is an in-memory core.Keychain fake.
type MemKeychain struct {
	keys []core.KeyInfo
}

// NewMemKeychain creates a MemKeychain holding keys.
func NewMemKeychain(keys ...core.KeyInfo) *MemKeychain {
	return &MemKeychain{keys: keys}
}

func (k *MemKeychain) Enumerate() ([]core.KeyInfo, error) {
	out := make([]core.KeyInfo, len(k.keys))
	copy(out, k.keys)
	return out, nil
}

func (k *MemKeychain) Select(fingerprint *uint32) (core.KeyInfo, error) {
	if len(k.keys) == 0 {
		return core.KeyInfo{}, core.ErrNoKey
	}
	if fingerprint == nil {
		return k.keys[0], nil
	}
	for _, ki := range k.keys {
		if ki.Fingerprint == *fingerprint {
			return ki, nil
		}
	}
	return core.KeyInfo{}, core.ErrNoKey
}

// MemIntroducerPeers is an in-memory core.IntroducerPeers fake.
type MemIntroducerPeers struct {
	mu      sync.Mutex
	peers   []core.PeerInfo
	started bool
}

// NewMemIntroducerPeers creates a MemIntroducerPeers returning peers.
func NewMemIntroducerPeers(peers ...core.PeerInfo) *MemIntroducerPeers {
	return &MemIntroducerPeers{peers: peers}
}

func (p *MemIntroducerPeers) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	return nil
}

func (p *MemIntroducerPeers) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
}

func (p *MemIntroducerPeers) Peers() []core.PeerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.PeerInfo, len(p.peers))
	copy(out, p.peers)
	return out
}
