package walletsync

import (
	"math/big"
	"math/rand"
	"sort"

	"github.com/tolelom/tolwallet/core"
)

// MaxSamples is the cap on weighted samples drawn during Phase C (spec.md
// §4.1: "Draw k = min(100, |candidates|)").
const MaxSamples = 100

// DifficultyAt returns the difficulty active at height h, computed by a
// forward scan of proofHashes: the last non-nil DifficultyChange at or
// before h (spec.md §3 "the current difficulty at height h is the last
// non-null value at or before h").
func DifficultyAt(proofHashes []core.ProofHashTriple, h uint32) *big.Int {
	current := big.NewInt(1)
	for i := 0; i <= int(h) && i < len(proofHashes); i++ {
		if proofHashes[i].DifficultyChange != nil {
			current = proofHashes[i].DifficultyChange
		}
	}
	return current
}

// SampleHeights builds the expanded sample list for Phase C (spec.md
// §4.1/§4.4): candidate odd heights in (forkPoint+1, tipHeight), weighted by
// the difficulty active at each, drawn with replacement up to MaxSamples,
// deduplicated, sorted ascending, then each sampled height h gets its h-1
// companion appended so the sampler can verify inter-block challenge
// chaining. rng is injected for determinism in tests.
func SampleHeights(forkPoint, tipHeight uint32, proofHashes []core.ProofHashTriple, rng *rand.Rand) []uint32 {
	var candidates []uint32
	var weights []*big.Int
	total := new(big.Int)
	for h := forkPoint + 2; h < tipHeight; h++ {
		if h%2 == 0 {
			continue
		}
		w := DifficultyAt(proofHashes, h)
		candidates = append(candidates, h)
		weights = append(weights, w)
		total.Add(total, w)
	}
	if len(candidates) == 0 {
		return nil
	}

	k := MaxSamples
	if len(candidates) < k {
		k = len(candidates)
	}

	selected := make(map[uint32]struct{})
	if total.Sign() == 0 {
		// All weights zero (no difficulty data yet): fall back to
		// uniform sampling so the sampler still has candidates.
		for i := 0; i < k; i++ {
			selected[candidates[rng.Intn(len(candidates))]] = struct{}{}
		}
	} else {
		for i := 0; i < k; i++ {
			selected[weightedPick(candidates, weights, total, rng)] = struct{}{}
		}
	}

	out := make([]uint32, 0, len(selected)*2)
	for h := range selected {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	expanded := make([]uint32, 0, len(out)*2)
	for _, h := range out {
		if h > 0 {
			expanded = append(expanded, h-1)
		}
		expanded = append(expanded, h)
	}
	sort.Slice(expanded, func(i, j int) bool { return expanded[i] < expanded[j] })
	return dedupSorted(expanded)
}

func weightedPick(candidates []uint32, weights []*big.Int, total *big.Int, rng *rand.Rand) uint32 {
	// Draw a uniform value in [0, total) by scaling a float64 draw; total
	// is a chain-weight sum and never astronomically large relative to
	// float64 precision for the sampling sizes this engine deals with.
	target := new(big.Float).Mul(new(big.Float).SetInt(total), big.NewFloat(rng.Float64()))
	running := new(big.Float)
	for i, w := range weights {
		running.Add(running, new(big.Float).SetInt(w))
		if running.Cmp(target) > 0 {
			return candidates[i]
		}
	}
	return candidates[len(candidates)-1]
}

func dedupSorted(in []uint32) []uint32 {
	if len(in) == 0 {
		return in
	}
	out := in[:1]
	for _, h := range in[1:] {
		if h != out[len(out)-1] {
			out = append(out, h)
		}
	}
	return out
}
