package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCandidates() []Candidate {
	return []Candidate{
		{ChunkID: "a", Text: "lease agreement for the apartment"},
		{ChunkID: "b", Text: "tax return for last year"},
		{ChunkID: "c", Text: "apartment lease renewal notice"},
	}
}

func TestNoOpReranker_PreservesOrder(t *testing.T) {
	r := &NoOpReranker{}

	ids, err := r.Rerank(context.Background(), "lease", testCandidates(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.True(t, r.Available(context.Background()))
}

func TestNoOpReranker_Truncates(t *testing.T) {
	r := &NoOpReranker{}

	ids, err := r.Rerank(context.Background(), "lease", testCandidates(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestCrossEncoderReranker_ReordersByScore(t *testing.T) {
	// Score by term overlap with the query.
	scoreFn := func(ctx context.Context, query, passage string) (float64, error) {
		score := 0.0
		for _, w := range strings.Fields(query) {
			if strings.Contains(passage, w) {
				score++
			}
		}
		return score, nil
	}
	r := NewCrossEncoderReranker(scoreFn, nil)
	require.True(t, r.Available(context.Background()))

	ids, err := r.Rerank(context.Background(), "apartment lease", testCandidates(), 0)
	require.NoError(t, err)

	// a and c both mention apartment and lease; tie broken by ID. b last.
	assert.Equal(t, []string{"a", "c", "b"}, ids)
}

func TestCrossEncoderReranker_NilHandleDegradesGracefully(t *testing.T) {
	r := NewCrossEncoderReranker(nil, nil)
	assert.False(t, r.Available(context.Background()))

	ids, err := r.Rerank(context.Background(), "anything", testCandidates(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids, "input order unchanged when model absent")
}

func TestCrossEncoderReranker_ScoringErrorDegradesToInputOrder(t *testing.T) {
	r := NewCrossEncoderReranker(func(ctx context.Context, q, p string) (float64, error) {
		return 0, errors.New("model crashed")
	}, nil)

	ids, err := r.Rerank(context.Background(), "anything", testCandidates(), 0)
	require.NoError(t, err, "scoring failure must not fail the query")
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestCrossEncoderReranker_NonInvention(t *testing.T) {
	r := NewCrossEncoderReranker(func(ctx context.Context, q, p string) (float64, error) {
		return float64(len(p)), nil
	}, nil)

	input := testCandidates()
	ids, err := r.Rerank(context.Background(), "query", input, 0)
	require.NoError(t, err)

	inputIDs := make([]string, len(input))
	for i, c := range input {
		inputIDs[i] = c.ChunkID
	}
	assert.ElementsMatch(t, inputIDs, ids, "output must be a permutation of the input")
}

func TestCrossEncoderReranker_TopKReduces(t *testing.T) {
	r := NewCrossEncoderReranker(func(ctx context.Context, q, p string) (float64, error) {
		return float64(len(p)), nil
	}, nil)

	ids, err := r.Rerank(context.Background(), "query", testCandidates(), 1)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestCrossEncoderReranker_EmptyCandidates(t *testing.T) {
	r := NewCrossEncoderReranker(func(ctx context.Context, q, p string) (float64, error) {
		return 1, nil
	}, nil)

	ids, err := r.Rerank(context.Background(), "query", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
