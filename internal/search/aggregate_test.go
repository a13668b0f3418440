package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fused(id string, score float64) *FusedResult {
	return &FusedResult{ChunkID: id, FusedScore: score}
}

func twoSubs() []SubQuery {
	return []SubQuery{
		{Text: "first", Weight: 1.0},
		{Text: "second", Weight: 1.0},
	}
}

func TestNewAggregator_Validation(t *testing.T) {
	_, err := NewAggregator("median", DefaultDecayFactor)
	assert.Error(t, err)

	_, err = NewAggregator(StrategySum, 0)
	assert.Error(t, err)

	_, err = NewAggregator(StrategySum, 1.2)
	assert.Error(t, err)

	_, err = NewAggregator(StrategyWeighted, 0.7)
	assert.NoError(t, err)
}

func TestAggregator_Max(t *testing.T) {
	a, err := NewAggregator(StrategyMax, DefaultDecayFactor)
	require.NoError(t, err)

	results, err := a.Aggregate([][]*FusedResult{
		{fused("a", 0.030), fused("b", 0.020)},
		{fused("a", 0.010), fused("c", 0.025)},
	}, twoSubs())
	require.NoError(t, err)

	byID := map[string]*AggregatedResult{}
	for _, r := range results {
		byID[r.ChunkID] = r
	}

	assert.InDelta(t, 0.030, byID["a"].AggregateScore, 1e-12)
	assert.InDelta(t, 0.020, byID["b"].AggregateScore, 1e-12)
	assert.InDelta(t, 0.025, byID["c"].AggregateScore, 1e-12)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestAggregator_SumRewardsMultiAspectMatches(t *testing.T) {
	a, err := NewAggregator(StrategySum, DefaultDecayFactor)
	require.NoError(t, err)

	results, err := a.Aggregate([][]*FusedResult{
		{fused("both", 0.016), fused("onlyFirst", 0.030)},
		{fused("both", 0.016)},
	}, twoSubs())
	require.NoError(t, err)

	byID := map[string]*AggregatedResult{}
	for _, r := range results {
		byID[r.ChunkID] = r
	}
	assert.InDelta(t, 0.032, byID["both"].AggregateScore, 1e-12)
	assert.InDelta(t, 0.030, byID["onlyFirst"].AggregateScore, 1e-12)
	assert.Equal(t, "both", results[0].ChunkID)
}

func TestAggregator_WeightedDecaysByOrder(t *testing.T) {
	a, err := NewAggregator(StrategyWeighted, 0.5)
	require.NoError(t, err)

	// Same fused score in each sub-query: the later one contributes half.
	results, err := a.Aggregate([][]*FusedResult{
		{fused("first", 0.02)},
		{fused("second", 0.02)},
	}, twoSubs())
	require.NoError(t, err)

	byID := map[string]*AggregatedResult{}
	for _, r := range results {
		byID[r.ChunkID] = r
	}
	assert.InDelta(t, 0.02, byID["first"].AggregateScore, 1e-12)
	assert.InDelta(t, 0.01, byID["second"].AggregateScore, 1e-12)
	assert.Equal(t, "first", results[0].ChunkID)
}

func TestAggregator_WeightedRespectsSubQueryWeights(t *testing.T) {
	a, err := NewAggregator(StrategyWeighted, 0.5)
	require.NoError(t, err)

	subs := []SubQuery{
		{Text: "first", Weight: 1.0},
		{Text: "second", Weight: 4.0},
	}
	results, err := a.Aggregate([][]*FusedResult{
		{fused("x", 0.02)},
		{fused("y", 0.02)},
	}, subs)
	require.NoError(t, err)

	byID := map[string]*AggregatedResult{}
	for _, r := range results {
		byID[r.ChunkID] = r
	}
	// y: 4.0 * 0.5^1 * 0.02 = 0.04, x: 1.0 * 0.5^0 * 0.02 = 0.02.
	assert.InDelta(t, 0.02, byID["x"].AggregateScore, 1e-12)
	assert.InDelta(t, 0.04, byID["y"].AggregateScore, 1e-12)
}

func TestAggregator_Conservation(t *testing.T) {
	a, err := NewAggregator(StrategySum, DefaultDecayFactor)
	require.NoError(t, err)

	perSub := [][]*FusedResult{
		{fused("a", 0.03), fused("b", 0.02)},
		{fused("b", 0.01), fused("c", 0.04)},
		{fused("d", 0.02)},
	}
	subs := []SubQuery{
		{Text: "s0", Weight: 1}, {Text: "s1", Weight: 1}, {Text: "s2", Weight: 1},
	}

	results, err := a.Aggregate(perSub, subs)
	require.NoError(t, err)

	// Every input chunk appears exactly once.
	seen := map[string]int{}
	for _, r := range results {
		seen[r.ChunkID]++
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1, "d": 1}, seen)
}

func TestAggregator_MatchedSubQueriesRecorded(t *testing.T) {
	a, err := NewAggregator(StrategyMax, DefaultDecayFactor)
	require.NoError(t, err)

	results, err := a.Aggregate([][]*FusedResult{
		{fused("a", 0.03)},
		{fused("a", 0.01), fused("b", 0.02)},
		{fused("a", 0.02)},
	}, []SubQuery{
		{Text: "s0", Weight: 1}, {Text: "s1", Weight: 1}, {Text: "s2", Weight: 1},
	})
	require.NoError(t, err)

	byID := map[string]*AggregatedResult{}
	for _, r := range results {
		byID[r.ChunkID] = r
	}
	assert.Equal(t, []int{0, 1, 2}, byID["a"].MatchedSubQueries)
	assert.Equal(t, []int{1}, byID["b"].MatchedSubQueries)
}

func TestAggregator_RejectsNonPositiveSubQueryWeight(t *testing.T) {
	a, err := NewAggregator(StrategySum, DefaultDecayFactor)
	require.NoError(t, err)

	_, err = a.Aggregate([][]*FusedResult{{fused("a", 0.03)}},
		[]SubQuery{{Text: "bad", Weight: -1}})
	assert.Error(t, err)
}

func TestAggregator_TiesBrokenByChunkID(t *testing.T) {
	a, err := NewAggregator(StrategyMax, DefaultDecayFactor)
	require.NoError(t, err)

	results, err := a.Aggregate([][]*FusedResult{
		{fused("zed", 0.02), fused("ant", 0.02)},
	}, []SubQuery{{Text: "s", Weight: 1}})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "ant", results[0].ChunkID)
	assert.Equal(t, "zed", results[1].ChunkID)
}
