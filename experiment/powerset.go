// Package experiment holds the experimental design layer: which collection
// combinations to ablate, how collections and queries split into test and
// control groups, and how rounds rotate those groups and persist results.
//
// Every random choice draws from a generator seeded from the configured
// seed, so identical inputs always produce identical designs.
package experiment

import (
	"math/bits"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"

	"github.com/teranos/ablation/errors"
)

// MaxCollections bounds the collections a generator accepts so subsets fit
// in a uint32 mask.
const MaxCollections = 30

// Stream identifiers keep independent decisions from sharing a sequence.
const (
	streamSmartSubset uint64 = iota + 1
	streamBalancedSubset
	streamAssign
	streamRotate
)

// Combination is a sorted, deduplicated, non-empty set of collection names
// ablated together.
type Combination []string

// NewCombination sorts and deduplicates names.
func NewCombination(names ...string) Combination {
	c := append(Combination(nil), names...)
	sort.Strings(c)
	return slices.Compact(c)
}

// Label joins the members with "+".
func (c Combination) Label() string {
	return strings.Join(c, "+")
}

// Contains reports whether name is a member.
func (c Combination) Contains(name string) bool {
	_, found := slices.BinarySearch(c, name)
	return found
}

// compareCombinations orders by size, then element-wise.
func compareCombinations(a, b Combination) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return slices.Compare(a, b)
}

// SortCombinations orders combinations by size, then lexicographically.
func SortCombinations(cs []Combination) {
	slices.SortFunc(cs, compareCombinations)
}

// PowerSetGenerator enumerates and samples collection combinations.
type PowerSetGenerator struct {
	collections []string
	seed        uint64
}

// NewPowerSetGenerator validates collections and seed. Collections are
// sorted and deduplicated.
func NewPowerSetGenerator(collections []string, seed int64) (*PowerSetGenerator, error) {
	c := NewCombination(collections...)
	if len(c) == 0 {
		return nil, errors.Configurationf("power set requires at least one collection")
	}
	if len(c) > MaxCollections {
		return nil, errors.Configurationf("power set supports at most %d collections, got %d", MaxCollections, len(c))
	}
	if seed < 0 {
		return nil, errors.Configurationf("seed must be non-negative, got %d", seed)
	}
	for _, name := range c {
		if name == "" {
			return nil, errors.Configurationf("collection names cannot be empty")
		}
	}
	return &PowerSetGenerator{collections: c, seed: uint64(seed)}, nil
}

// Collections returns the sorted collection names.
func (g *PowerSetGenerator) Collections() []string {
	return append([]string(nil), g.collections...)
}

func (g *PowerSetGenerator) rng(stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(g.seed, stream))
}

func (g *PowerSetGenerator) fromMask(mask uint32) Combination {
	c := make(Combination, 0, bits.OnesCount32(mask))
	for i, name := range g.collections {
		if mask&(1<<i) != 0 {
			c = append(c, name)
		}
	}
	return c
}

func (g *PowerSetGenerator) fullMask() uint32 {
	return uint32(1)<<len(g.collections) - 1
}

// All returns every combination with between minSize and maxSize members,
// sorted. A maxSize of 0 means all collections; larger values are clamped.
func (g *PowerSetGenerator) All(minSize, maxSize int) ([]Combination, error) {
	n := len(g.collections)
	if maxSize == 0 || maxSize > n {
		maxSize = n
	}
	if minSize < 1 {
		return nil, errors.Configurationf("minimum combination size must be at least 1, got %d", minSize)
	}
	if maxSize < minSize {
		return nil, errors.Configurationf("combination size bounds inverted: min %d > max %d", minSize, maxSize)
	}

	var out []Combination
	for mask := uint32(1); mask <= g.fullMask(); mask++ {
		size := bits.OnesCount32(mask)
		if size >= minSize && size <= maxSize {
			out = append(out, g.fromMask(mask))
		}
	}
	SortCombinations(out)
	return out, nil
}

// SmartSubset selects target combinations at random. With ensureAll, every
// collection appears in at least one selected combination even when that
// takes more than target picks.
func (g *PowerSetGenerator) SmartSubset(target int, ensureAll bool) ([]Combination, error) {
	if target < 1 {
		return nil, errors.Configurationf("target combination count must be at least 1, got %d", target)
	}
	full := g.fullMask()
	if uint64(target) >= uint64(full) {
		return g.All(1, 0)
	}

	r := g.rng(streamSmartSubset)
	n := len(g.collections)
	selected := make(map[uint32]bool, target)
	var order []uint32
	pick := func(mask uint32) bool {
		if selected[mask] {
			return false
		}
		selected[mask] = true
		order = append(order, mask)
		return true
	}

	if ensureAll {
		var covered uint32
		for _, i := range r.Perm(n) {
			bit := uint32(1) << i
			if covered&bit != 0 {
				continue
			}
			// A random superset of this collection not chosen yet.
			for {
				mask := (r.Uint32() & full) | bit
				if pick(mask) {
					covered |= mask
					break
				}
			}
		}
	}

	for len(order) < target {
		mask := r.Uint32() & full
		if mask == 0 {
			continue
		}
		pick(mask)
	}

	out := make([]Combination, len(order))
	for i, mask := range order {
		out[i] = g.fromMask(mask)
	}
	SortCombinations(out)
	return out, nil
}

// BalancedSubset samples up to perSize combinations of every size.
func (g *PowerSetGenerator) BalancedSubset(perSize int) ([]Combination, error) {
	if perSize < 1 {
		return nil, errors.Configurationf("combinations per size must be at least 1, got %d", perSize)
	}

	r := g.rng(streamBalancedSubset)
	n := len(g.collections)
	var out []Combination
	for size := 1; size <= n; size++ {
		if binomial(n, size) <= uint64(perSize) {
			all, err := g.All(size, size)
			if err != nil {
				return nil, err
			}
			out = append(out, all...)
			continue
		}

		seen := make(map[uint32]bool, perSize)
		for len(seen) < perSize {
			var mask uint32
			for _, i := range r.Perm(n)[:size] {
				mask |= 1 << i
			}
			if !seen[mask] {
				seen[mask] = true
				out = append(out, g.fromMask(mask))
			}
		}
	}
	SortCombinations(out)
	return out, nil
}

// SingleAblations returns, for each collection, the combination of all the
// others.
func (g *PowerSetGenerator) SingleAblations() []Combination {
	if len(g.collections) < 2 {
		return nil
	}
	out := make([]Combination, 0, len(g.collections))
	for i := range g.collections {
		out = append(out, g.fromMask(g.fullMask()&^(1<<i)))
	}
	SortCombinations(out)
	return out
}

// SingleInclusions returns one combination per collection.
func (g *PowerSetGenerator) SingleInclusions() []Combination {
	out := make([]Combination, 0, len(g.collections))
	for _, name := range g.collections {
		out = append(out, Combination{name})
	}
	return out
}

func binomial(n, k int) uint64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	result := uint64(1)
	for i := 1; i <= k; i++ {
		result = result * uint64(n-k+i) / uint64(i)
	}
	return result
}
