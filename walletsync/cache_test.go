package walletsync

import (
	"math/big"
	"testing"

	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/internal/testutil"
)

func hashN(b byte) core.HeaderHash {
	var h core.HeaderHash
	h[0] = b
	return h
}

func TestCacheFutureMultimap(t *testing.T) {
	c := NewCache()
	prev := hashN(1)
	childA := hashN(2)
	childB := hashN(3)

	c.AddFuture(prev, childA)
	c.AddFuture(prev, childB)
	c.AddFuture(prev, childA) // duplicate, should not double up

	children := c.PopFuture(prev)
	if len(children) != 2 {
		t.Fatalf("PopFuture = %v, want 2 children (multimap fix for the single-successor bug)", children)
	}

	// popped once, now empty
	if got := c.PopFuture(prev); got != nil {
		t.Fatalf("PopFuture after pop = %v, want nil", got)
	}
}

func TestCacheEvictOlderThan(t *testing.T) {
	c := NewCache()
	for h := uint32(0); h < 10; h++ {
		hash := hashN(byte(h + 1))
		c.Put(hash, &CachedBlock{Record: &core.BlockRecord{Hash: hash, Height: h}})
	}
	c.EvictOlderThan(9, 5) // horizon = 4; heights < 4 evicted
	for h := uint32(0); h < 4; h++ {
		if _, ok := c.Get(hashN(byte(h + 1))); ok {
			t.Fatalf("height %d should have been evicted", h)
		}
	}
	for h := uint32(4); h < 10; h++ {
		if _, ok := c.Get(hashN(byte(h + 1))); !ok {
			t.Fatalf("height %d should still be cached", h)
		}
	}
}

func TestBlockFinishedAddedToHeadEvictsAndChains(t *testing.T) {
	sm, err := newTestStateManager(t)
	if err != nil {
		t.Fatal(err)
	}
	c := NewCache()

	genesis := &core.BlockRecord{Hash: hashN(1), Height: 0, Weight: big.NewInt(1), TotalIters: big.NewInt(1)}
	if children := BlockFinished(c, sm, nil, genesis, nil); children != nil {
		t.Fatalf("children = %v, want nil", children)
	}

	child := &core.BlockRecord{Hash: hashN(2), PrevHash: genesis.Hash, Height: 1, Weight: big.NewInt(2), TotalIters: big.NewInt(2)}
	grandchild := hashN(3)
	c.Put(child.Hash, &CachedBlock{Record: child})
	c.AddFuture(child.Hash, grandchild)

	children := BlockFinished(c, sm, nil, child, nil)
	if len(children) != 1 || children[0] != grandchild {
		t.Fatalf("children = %v, want [%v]", children, grandchild)
	}
	if _, ok := c.Get(child.Hash); ok {
		t.Fatal("committed child should have been evicted from the cache")
	}
}

func TestBlockFinishedDisconnectedDropsRecord(t *testing.T) {
	sm, err := newTestStateManager(t)
	if err != nil {
		t.Fatal(err)
	}
	c := NewCache()
	orphan := &core.BlockRecord{Hash: hashN(9), PrevHash: hashN(8), Height: 5, Weight: big.NewInt(1), TotalIters: big.NewInt(1)}
	c.Put(orphan.Hash, &CachedBlock{Record: orphan})

	children := BlockFinished(c, sm, nil, orphan, nil)
	if children != nil {
		t.Fatalf("children = %v, want nil", children)
	}
	if _, ok := c.Get(orphan.Hash); ok {
		t.Fatal("disconnected record should have been evicted from cache")
	}
}

func newTestStateManager(t *testing.T) (*testutil.MemStateManager, error) {
	t.Helper()
	return testutil.NewMemStateManager(true), nil
}
