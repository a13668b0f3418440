package search

import (
	"fmt"
	"math"
	"sort"

	sherr "github.com/shelfmark/shelfmark/internal/errors"
)

// DefaultDecayFactor is the geometric decay applied to sub-query weights
// under the weighted strategy.
const DefaultDecayFactor = 0.7

// Aggregator merges per-sub-query fused lists into one ordering.
type Aggregator struct {
	strategy Strategy
	decay    float64
}

// NewAggregator validates the strategy and decay factor up front so bad
// configuration fails at startup, not mid-query.
func NewAggregator(strategy Strategy, decay float64) (*Aggregator, error) {
	switch strategy {
	case StrategyMax, StrategySum, StrategyWeighted:
	default:
		return nil, sherr.ConfigError(
			fmt.Sprintf("unknown aggregation strategy %q", strategy), nil)
	}
	if decay <= 0 || decay > 1 {
		return nil, sherr.ConfigError(
			fmt.Sprintf("decay factor must be in (0,1], got %g", decay), nil)
	}
	return &Aggregator{strategy: strategy, decay: decay}, nil
}

// Aggregate merges one fused list per sub-query. Every chunk appearing in
// any input list appears exactly once in the output, sorted descending by
// aggregate score with ties broken by chunk ID ascending.
//
// Scores per strategy, where w_i is the sub-query weight (scaled by
// decay^i under weighted):
//
//	max:      max_i (w_i * fused_i)
//	sum:      Σ_i  (w_i * fused_i)
//	weighted: Σ_i  (w_0_i * decay^i * fused_i)
func (a *Aggregator) Aggregate(perSubQuery [][]*FusedResult, subs []SubQuery) ([]*AggregatedResult, error) {
	for i, sub := range subs {
		if sub.Weight <= 0 {
			return nil, sherr.ConfigError(
				fmt.Sprintf("sub-query %d has non-positive weight %g", i, sub.Weight), nil)
		}
	}

	byID := make(map[string]*AggregatedResult)
	for subIdx, fusedList := range perSubQuery {
		weight := a.effectiveWeight(subs, subIdx)
		for _, fused := range fusedList {
			agg, ok := byID[fused.ChunkID]
			if !ok {
				agg = &AggregatedResult{ChunkID: fused.ChunkID}
				byID[fused.ChunkID] = agg
			}

			contribution := weight * fused.FusedScore
			switch a.strategy {
			case StrategyMax:
				if contribution > agg.AggregateScore {
					agg.AggregateScore = contribution
				}
			default: // sum, weighted
				agg.AggregateScore += contribution
			}

			agg.MatchedSubQueries = append(agg.MatchedSubQueries, subIdx)
			agg.Contributions = append(agg.Contributions, fused.Contributions...)
		}
	}

	results := make([]*AggregatedResult, 0, len(byID))
	for _, agg := range byID {
		sort.Ints(agg.MatchedSubQueries)
		results = append(results, agg)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].AggregateScore != results[j].AggregateScore {
			return results[i].AggregateScore > results[j].AggregateScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	return results, nil
}

func (a *Aggregator) effectiveWeight(subs []SubQuery, idx int) float64 {
	weight := 1.0
	if idx < len(subs) {
		weight = subs[idx].Weight
	}
	if a.strategy == StrategyWeighted {
		weight *= math.Pow(a.decay, float64(idx))
	}
	return weight
}
