// Package search implements the retrieval and ranking engine: hybrid
// semantic + lexical search fused with Reciprocal Rank Fusion, compound
// query decomposition with selectable aggregation, and optional
// cross-encoder reranking.
package search

import (
	"time"

	"github.com/shelfmark/shelfmark/internal/store"
)

// Mode selects which adapters participate in a search.
type Mode string

const (
	// ModeHybrid queries both the vector backend and the lexical index.
	ModeHybrid Mode = "hybrid"
	// ModeSemantic queries only the vector backend.
	ModeSemantic Mode = "semantic"
	// ModeKeyword queries only the lexical index.
	ModeKeyword Mode = "keyword"
)

// Strategy selects how per-sub-query fused lists are merged.
type Strategy string

const (
	// StrategyMax keeps each chunk's best weighted fused score.
	StrategyMax Strategy = "max"
	// StrategySum adds weighted fused scores, rewarding chunks that match
	// multiple aspects of a compound query.
	StrategySum Strategy = "sum"
	// StrategyWeighted is SUM with geometrically decaying sub-query weights,
	// privileging the first-stated aspect.
	StrategyWeighted Strategy = "weighted"
)

// SubQuery origin labels.
const (
	OriginRule = "rule"
	OriginLLM  = "llm"
)

// SubQuery is one independently searchable aspect of a compound query.
// Invariant: Weight > 0.
type SubQuery struct {
	Text   string
	Weight float64
	Origin string
}

// FusedResult is a single result after RRF fusion of one sub-query's lists.
type FusedResult struct {
	ChunkID string

	// FusedScore is the raw RRF sum. Strictly orders the output; ties are
	// broken by ChunkID ascending.
	FusedScore float64

	// ContributingLists names the input lists that contained this chunk,
	// in a fixed label order.
	ContributingLists []string

	// Contributions preserves the originating scored results (adapter,
	// sub-query index, raw and normalised scores, rank) for provenance.
	Contributions []*store.ScoredResult
}

// BestRawScores returns the best raw score seen per adapter kind.
func (f *FusedResult) BestRawScores() map[store.AdapterKind]float64 {
	best := make(map[store.AdapterKind]float64, len(f.Contributions))
	for _, c := range f.Contributions {
		if cur, ok := best[c.Source.Kind]; !ok || c.RawScore > cur {
			best[c.Source.Kind] = c.RawScore
		}
	}
	return best
}

// AggregatedResult is a single result after merging per-sub-query fused
// lists. Every chunk appearing in any sub-query's fused list appears exactly
// once.
type AggregatedResult struct {
	ChunkID        string
	AggregateScore float64

	// MatchedSubQueries lists every contributing sub-query index ascending,
	// so callers can explain why a result was retrieved.
	MatchedSubQueries []int

	Contributions []*store.ScoredResult
}

// Options controls a single search call.
type Options struct {
	// Mode selects the participating adapters (default: hybrid).
	Mode Mode

	// Decompose enables compound query decomposition.
	Decompose bool

	// Rerank enables the second-pass reranker on the final candidate set.
	Rerank bool

	// Strategy selects the aggregation strategy (default: max).
	Strategy Strategy

	// Limit is the maximum number of results (default: 10).
	Limit int

	// Filters restricts results to chunks whose metadata contains every
	// given key-value pair.
	Filters map[string]string
}

// Result is one final ranked result with full provenance.
type Result struct {
	ChunkID string
	Chunk   *store.Chunk
	Score   float64

	// MatchedSubQueries lists contributing sub-query indices (empty slice
	// collapses to [0] for undecomposed queries).
	MatchedSubQueries []int

	// Provenance preserves every adapter hit that led here.
	Provenance []*store.ScoredResult
}

// Response carries the ranked results plus query-level diagnostics.
type Response struct {
	QueryID    string
	Results    []*Result
	SubQueries []SubQuery

	// Degraded names adapters that were skipped as unavailable.
	Degraded []string

	// Reranked reports whether the reranker actually ran.
	Reranked bool

	Took time.Duration
}
