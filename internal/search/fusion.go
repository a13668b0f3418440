package search

import (
	"fmt"
	"sort"

	sherr "github.com/shelfmark/shelfmark/internal/errors"
	"github.com/shelfmark/shelfmark/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains (used by Azure AI Search,
// OpenSearch, and others).
const DefaultRRFConstant = 60

// FusionInput is one labelled ranked list handed to the fuser.
type FusionInput struct {
	Label   string
	Results store.RankedList
}

// Fuser combines ranked lists for the same query using Reciprocal Rank
// Fusion:
//
//	fused_score(c) = Σ over lists L containing c of 1 / (k + rank_L(c))
//
// Chunks absent from a list contribute 0 for that list. RRF operates on
// rank, not score, which makes it robust to wildly different raw-score
// distributions between semantic and lexical search.
type Fuser struct {
	k int
}

// NewFuser creates a fuser with the given smoothing constant.
// k must be positive.
func NewFuser(k int) (*Fuser, error) {
	if k <= 0 {
		return nil, sherr.ConfigError(fmt.Sprintf("rrf constant must be positive, got %d", k), nil)
	}
	return &Fuser{k: k}, nil
}

// K returns the smoothing constant.
func (f *Fuser) K() int { return f.k }

// Fuse merges the given lists into a single ordering sorted descending by
// fused score, ties broken by chunk ID ascending. With a single non-empty
// list, fusion degenerates to a rank-preserving pass-through.
func (f *Fuser) Fuse(lists ...FusionInput) []*FusedResult {
	byID := make(map[string]*FusedResult)

	for _, list := range lists {
		for _, r := range list.Results {
			fused, ok := byID[r.ChunkID]
			if !ok {
				fused = &FusedResult{ChunkID: r.ChunkID}
				byID[r.ChunkID] = fused
			}
			fused.FusedScore += 1 / float64(f.k+r.Rank)
			fused.ContributingLists = append(fused.ContributingLists, list.Label)
			fused.Contributions = append(fused.Contributions, r)
		}
	}

	results := make([]*FusedResult, 0, len(byID))
	for _, fused := range byID {
		results = append(results, fused)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	return results
}
