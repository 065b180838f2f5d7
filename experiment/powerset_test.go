package experiment

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/ablation/errors"
)

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("C%02d", i)
	}
	return out
}

func TestNewCombination(t *testing.T) {
	c := NewCombination("b", "a", "b")
	assert.Equal(t, Combination{"a", "b"}, c)
	assert.Equal(t, "a+b", c.Label())
	assert.True(t, c.Contains("a"))
	assert.False(t, c.Contains("c"))
}

func TestPowerSetAll(t *testing.T) {
	g, err := NewPowerSetGenerator([]string{"C", "A", "B"}, 42)
	require.NoError(t, err)

	all, err := g.All(1, 0)
	require.NoError(t, err)
	assert.Equal(t, []Combination{
		{"A"}, {"B"}, {"C"},
		{"A", "B"}, {"A", "C"}, {"B", "C"},
		{"A", "B", "C"},
	}, all)

	pairs, err := g.All(2, 2)
	require.NoError(t, err)
	assert.Len(t, pairs, 3)

	clamped, err := g.All(3, 10)
	require.NoError(t, err)
	assert.Equal(t, []Combination{{"A", "B", "C"}}, clamped)
}

func TestPowerSetCompleteness(t *testing.T) {
	for n := 1; n <= 8; n++ {
		g, err := NewPowerSetGenerator(names(n), 1)
		require.NoError(t, err)
		all, err := g.All(1, 0)
		require.NoError(t, err)
		assert.Len(t, all, 1<<n-1, "n=%d", n)

		seen := make(map[string]bool)
		for _, c := range all {
			assert.NotEmpty(t, c)
			assert.False(t, seen[c.Label()], "duplicate %s", c.Label())
			seen[c.Label()] = true
		}
		assert.True(t, slices.IsSortedFunc(all, compareCombinations))
	}
}

func TestPowerSetConfigErrors(t *testing.T) {
	_, err := NewPowerSetGenerator(nil, 1)
	assert.True(t, errors.IsConfiguration(err))

	_, err = NewPowerSetGenerator(names(MaxCollections+1), 1)
	assert.True(t, errors.IsConfiguration(err))

	_, err = NewPowerSetGenerator([]string{"A"}, -1)
	assert.True(t, errors.IsConfiguration(err))

	g, err := NewPowerSetGenerator([]string{"A", "B"}, 1)
	require.NoError(t, err)

	_, err = g.All(0, 2)
	assert.True(t, errors.IsConfiguration(err))
	_, err = g.All(2, 1)
	assert.True(t, errors.IsConfiguration(err))
	_, err = g.SmartSubset(0, true)
	assert.True(t, errors.IsConfiguration(err))
	_, err = g.BalancedSubset(0)
	assert.True(t, errors.IsConfiguration(err))
}

func TestSmartSubset(t *testing.T) {
	g, err := NewPowerSetGenerator(names(10), 42)
	require.NoError(t, err)

	t.Run("deterministic for a seed", func(t *testing.T) {
		a, err := g.SmartSubset(15, true)
		require.NoError(t, err)
		b, err := g.SmartSubset(15, true)
		require.NoError(t, err)
		assert.Equal(t, a, b)

		other, err := NewPowerSetGenerator(names(10), 43)
		require.NoError(t, err)
		c, err := other.SmartSubset(15, true)
		require.NoError(t, err)
		assert.NotEqual(t, a, c)
	})

	t.Run("covers every collection", func(t *testing.T) {
		subset, err := g.SmartSubset(3, true)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(subset), 3)

		covered := make(map[string]bool)
		for _, c := range subset {
			for _, name := range c {
				covered[name] = true
			}
		}
		assert.Len(t, covered, 10)
	})

	t.Run("exact size without coverage", func(t *testing.T) {
		subset, err := g.SmartSubset(12, false)
		require.NoError(t, err)
		assert.Len(t, subset, 12)
		assert.True(t, slices.IsSortedFunc(subset, compareCombinations))
	})

	t.Run("target beyond power set returns everything", func(t *testing.T) {
		small, err := NewPowerSetGenerator(names(3), 42)
		require.NoError(t, err)
		subset, err := small.SmartSubset(100, true)
		require.NoError(t, err)
		assert.Len(t, subset, 7)
	})
}

func TestBalancedSubset(t *testing.T) {
	g, err := NewPowerSetGenerator(names(6), 7)
	require.NoError(t, err)

	subset, err := g.BalancedSubset(3)
	require.NoError(t, err)

	bySize := make(map[int]int)
	for _, c := range subset {
		bySize[len(c)]++
	}
	// C(6,1)=6 and C(6,5)=6 are sampled; C(6,6)=1 is taken whole.
	assert.Equal(t, map[int]int{1: 3, 2: 3, 3: 3, 4: 3, 5: 3, 6: 1}, bySize)

	again, err := g.BalancedSubset(3)
	require.NoError(t, err)
	assert.Equal(t, subset, again)
}

func TestSingles(t *testing.T) {
	g, err := NewPowerSetGenerator([]string{"A", "B", "C"}, 0)
	require.NoError(t, err)

	assert.Equal(t, []Combination{{"A", "B"}, {"A", "C"}, {"B", "C"}}, g.SingleAblations())
	assert.Equal(t, []Combination{{"A"}, {"B"}, {"C"}}, g.SingleInclusions())

	one, err := NewPowerSetGenerator([]string{"A"}, 0)
	require.NoError(t, err)
	assert.Empty(t, one.SingleAblations())
}

func TestBinomial(t *testing.T) {
	assert.Equal(t, uint64(1), binomial(5, 0))
	assert.Equal(t, uint64(10), binomial(5, 2))
	assert.Equal(t, uint64(155117520), binomial(30, 15))
	assert.Equal(t, uint64(0), binomial(3, 4))
}
