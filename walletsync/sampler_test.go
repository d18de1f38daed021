package walletsync

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/tolelom/tolwallet/core"
)

func makeProofHashes(n int) []core.ProofHashTriple {
	out := make([]core.ProofHashTriple, n)
	for i := range out {
		out[i] = core.ProofHashTriple{TotalIters: big.NewInt(int64(i + 1))}
	}
	out[0].DifficultyChange = big.NewInt(5)
	return out
}

func TestDifficultyAt(t *testing.T) {
	proofs := makeProofHashes(10)
	proofs[5].DifficultyChange = big.NewInt(9)
	if got := DifficultyAt(proofs, 0); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("DifficultyAt(0) = %v, want 5", got)
	}
	if got := DifficultyAt(proofs, 4); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("DifficultyAt(4) = %v, want 5", got)
	}
	if got := DifficultyAt(proofs, 5); got.Cmp(big.NewInt(9)) != 0 {
		t.Fatalf("DifficultyAt(5) = %v, want 9", got)
	}
}

func TestSampleHeightsOnlyOddPlusCompanion(t *testing.T) {
	proofs := makeProofHashes(200)
	rng := rand.New(rand.NewSource(1))
	heights := SampleHeights(0, 100, proofs, rng)
	if len(heights) == 0 {
		t.Fatal("expected non-empty sample")
	}
	seenOdd := false
	for i, h := range heights {
		if h >= 100 {
			t.Fatalf("height %d out of range [0,100)", h)
		}
		if h%2 == 1 {
			seenOdd = true
			// its companion h-1 must also be present somewhere
			found := false
			for _, other := range heights {
				if other == h-1 {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("odd height %d missing its h-1 companion", h)
			}
		}
		if i > 0 && heights[i-1] >= h {
			t.Fatalf("heights not strictly increasing: %v", heights)
		}
	}
	if !seenOdd {
		t.Fatal("expected at least one odd sampled height")
	}
}

func TestSampleHeightsCapAtMax(t *testing.T) {
	proofs := makeProofHashes(500)
	rng := rand.New(rand.NewSource(2))
	heights := SampleHeights(0, 400, proofs, rng)
	// at most MaxSamples distinct odd heights, each contributing up to
	// two entries (h-1, h), so the expanded list is bounded accordingly.
	if len(heights) > MaxSamples*2 {
		t.Fatalf("len(heights) = %d, want <= %d", len(heights), MaxSamples*2)
	}
}

func TestSampleHeightsEmptyRange(t *testing.T) {
	proofs := makeProofHashes(10)
	rng := rand.New(rand.NewSource(3))
	if got := SampleHeights(5, 6, proofs, rng); got != nil {
		t.Fatalf("SampleHeights = %v, want nil for empty odd-height range", got)
	}
}
