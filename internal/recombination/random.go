// Package recombination draws crossover breakpoints for meiosis.
//
// Every source in this package is driven by an explicit *rand.Rand. A
// *rand.Rand is not safe for concurrent use; draw positions from one goroutine
// and fan out afterwards.
package recombination

import (
	"math"
	"math/rand"
	"slices"
)

const defaultSeed int64 = 1

// NewRand returns a deterministic generator. Seed 0 maps to a fixed default.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = defaultSeed
	}
	return rand.New(rand.NewSource(seed))
}

// DeriveRand returns an independent stream for the given stream id, consuming
// one value from base.
func DeriveRand(base *rand.Rand, stream uint64) *rand.Rand {
	parent := defaultSeed
	if base != nil {
		parent = base.Int63()
	}
	return rand.New(rand.NewSource(mixSeed(parent, stream)))
}

// mixSeed is the SplitMix64 finalizer over parent and stream.
func mixSeed(parent int64, stream uint64) int64 {
	x := uint64(parent) ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return int64(x)
}

// poisson draws from Poisson(mean). Small means use Knuth's product method;
// large means fall back to a rounded normal approximation.
func poisson(rng *rand.Rand, mean float64) int {
	if mean <= 0 {
		return 0
	}
	if mean > 500 {
		v := math.Round(mean + math.Sqrt(mean)*rng.NormFloat64())
		if v < 0 {
			return 0
		}
		return int(v)
	}
	limit := math.Exp(-mean)
	k := 0
	p := rng.Float64()
	for p > limit {
		k++
		p *= rng.Float64()
	}
	return k
}

// uniformInt returns a value in [lo, hi].
func uniformInt(rng *rand.Rand, lo, hi uint32) uint32 {
	if hi <= lo {
		return lo
	}
	return lo + uint32(rng.Int63n(int64(hi-lo)+1))
}

// sampleWithoutReplacement returns count distinct values from [0, n), sorted.
func sampleWithoutReplacement(rng *rand.Rand, n uint32, count int) []uint32 {
	if count <= 0 || n == 0 {
		return nil
	}
	if uint64(count) >= uint64(n) {
		out := make([]uint32, n)
		for i := range out {
			out[i] = uint32(i)
		}
		return out
	}
	seen := make(map[uint32]struct{}, count)
	out := make([]uint32, 0, count)
	for len(out) < count {
		v := uint32(rng.Int63n(int64(n)))
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// startWithSecond is the fair coin deciding which chromosome of the parental
// pair a recombinant starts from.
func startWithSecond(rng *rand.Rand) bool {
	return rng.Float64() >= 0.5
}
