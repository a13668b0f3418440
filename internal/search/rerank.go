package search

import (
	"context"
	"log/slog"
	"sort"
)

// Candidate is a (chunk ID, passage text) pair handed to the reranker.
type Candidate struct {
	ChunkID string
	Text    string
}

// Reranker reorders an existing candidate set via pairwise query-passage
// scoring. It only ever reduces or reorders candidates, never introduces
// new chunk IDs, and must degrade gracefully when its model is unavailable.
type Reranker interface {
	// Rerank returns chunk IDs in reranked order, truncated to topK.
	// topK <= 0 means no truncation.
	Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]string, error)

	// Available reports whether the scoring model is ready.
	Available(ctx context.Context) bool
}

// NoOpReranker preserves the input order. Used when reranking is disabled.
type NoOpReranker struct{}

// Rerank returns the candidate IDs unchanged, truncated to topK.
func (r *NoOpReranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]string, error) {
	return candidateIDs(candidates, topK), nil
}

// Available always reports true.
func (r *NoOpReranker) Available(ctx context.Context) bool { return true }

// Verify interface implementation
var _ Reranker = (*NoOpReranker)(nil)

// ScoreFunc computes a pairwise relevance score for a (query, passage)
// pair, cross-encoder style. Its internals are out of scope; a nil handle
// means the model is not loaded.
type ScoreFunc func(ctx context.Context, query, passage string) (float64, error)

// CrossEncoderReranker reorders candidates by pairwise scores from an
// injected scoring function. Unavailability is a type-level branch (nil
// handle), not an exception path: the input order is returned unchanged.
type CrossEncoderReranker struct {
	score  ScoreFunc
	logger *slog.Logger
}

// NewCrossEncoderReranker creates a reranker around the given scoring
// function. A nil fn yields a reranker that passes input through.
func NewCrossEncoderReranker(fn ScoreFunc, logger *slog.Logger) *CrossEncoderReranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrossEncoderReranker{score: fn, logger: logger}
}

// Available reports whether a scoring function was injected.
func (r *CrossEncoderReranker) Available(ctx context.Context) bool {
	return r.score != nil
}

// Rerank scores every candidate against the query and returns IDs ordered
// by descending score, ties broken by chunk ID ascending, truncated to
// topK. Any scoring failure degrades to the input order rather than
// failing the query.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]string, error) {
	if r.score == nil || len(candidates) == 0 {
		return candidateIDs(candidates, topK), nil
	}

	type scored struct {
		id    string
		score float64
	}
	scoredCandidates := make([]scored, len(candidates))
	for i, c := range candidates {
		s, err := r.score(ctx, query, c.Text)
		if err != nil {
			r.logger.Warn("rerank_scoring_failed",
				slog.String("chunk_id", c.ChunkID),
				slog.String("error", err.Error()))
			return candidateIDs(candidates, topK), nil
		}
		scoredCandidates[i] = scored{id: c.ChunkID, score: s}
	}

	sort.Slice(scoredCandidates, func(i, j int) bool {
		if scoredCandidates[i].score != scoredCandidates[j].score {
			return scoredCandidates[i].score > scoredCandidates[j].score
		}
		return scoredCandidates[i].id < scoredCandidates[j].id
	})

	ids := make([]string, len(scoredCandidates))
	for i, s := range scoredCandidates {
		ids[i] = s.id
	}
	return truncate(ids, topK), nil
}

// Verify interface implementation
var _ Reranker = (*CrossEncoderReranker)(nil)

func candidateIDs(candidates []Candidate, topK int) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}
	return truncate(ids, topK)
}

func truncate(ids []string, topK int) []string {
	if topK > 0 && len(ids) > topK {
		return ids[:topK]
	}
	return ids
}
