package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfmark/internal/store"
)

func rankedList(kind store.AdapterKind, ids ...string) store.RankedList {
	list := make(store.RankedList, len(ids))
	for i, id := range ids {
		list[i] = &store.ScoredResult{
			ChunkID: id,
			Rank:    i + 1,
			Source:  store.Source{Kind: kind, SubQuery: -1},
		}
	}
	return list
}

func fusedOrder(results []*FusedResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}

func TestNewFuser_RejectsNonPositiveK(t *testing.T) {
	_, err := NewFuser(0)
	assert.Error(t, err)
	_, err = NewFuser(-5)
	assert.Error(t, err)

	f, err := NewFuser(60)
	require.NoError(t, err)
	assert.Equal(t, 60, f.K())
}

func TestFuser_WorkedExample(t *testing.T) {
	// semantic [A,B,C], lexical [B,D,A], k=60:
	//   A = 1/61 + 1/63, B = 1/62 + 1/61, C = 1/63, D = 1/62
	f, err := NewFuser(60)
	require.NoError(t, err)

	fused := f.Fuse(
		FusionInput{Label: labelSemantic, Results: rankedList(store.KindHNSW, "A", "B", "C")},
		FusionInput{Label: labelLexical, Results: rankedList(store.KindLexical, "B", "D", "A")},
	)

	require.Len(t, fused, 4)
	assert.Equal(t, []string{"B", "A", "D", "C"}, fusedOrder(fused))

	byID := map[string]*FusedResult{}
	for _, r := range fused {
		byID[r.ChunkID] = r
	}
	assert.InDelta(t, 1.0/61+1.0/63, byID["A"].FusedScore, 1e-12)
	assert.InDelta(t, 1.0/62+1.0/61, byID["B"].FusedScore, 1e-12)
	assert.InDelta(t, 1.0/63, byID["C"].FusedScore, 1e-12)
	assert.InDelta(t, 1.0/62, byID["D"].FusedScore, 1e-12)
}

func TestFuser_Deterministic(t *testing.T) {
	f, err := NewFuser(60)
	require.NoError(t, err)

	semantic := rankedList(store.KindHNSW, "x", "y", "z")
	lexical := rankedList(store.KindLexical, "y", "x", "w")

	first := fusedOrder(f.Fuse(
		FusionInput{Label: labelSemantic, Results: semantic},
		FusionInput{Label: labelLexical, Results: lexical},
	))
	for i := 0; i < 20; i++ {
		again := fusedOrder(f.Fuse(
			FusionInput{Label: labelSemantic, Results: semantic},
			FusionInput{Label: labelLexical, Results: lexical},
		))
		assert.Equal(t, first, again)
	}
}

func TestFuser_TopOfBothListsWins(t *testing.T) {
	f, err := NewFuser(60)
	require.NoError(t, err)

	fused := f.Fuse(
		FusionInput{Label: labelSemantic, Results: rankedList(store.KindHNSW, "top", "b", "c")},
		FusionInput{Label: labelLexical, Results: rankedList(store.KindLexical, "top", "c", "d")},
	)

	require.NotEmpty(t, fused)
	assert.Equal(t, "top", fused[0].ChunkID)
	for _, r := range fused[1:] {
		assert.LessOrEqual(t, r.FusedScore, fused[0].FusedScore)
	}
}

func TestFuser_SingleListIsRankPreservingPassThrough(t *testing.T) {
	f, err := NewFuser(60)
	require.NoError(t, err)

	fused := f.Fuse(
		FusionInput{Label: labelSemantic, Results: rankedList(store.KindHNSW, "a", "b", "c")},
		FusionInput{Label: labelLexical, Results: store.RankedList{}},
	)

	assert.Equal(t, []string{"a", "b", "c"}, fusedOrder(fused))
}

func TestFuser_EmptyInputs(t *testing.T) {
	f, err := NewFuser(60)
	require.NoError(t, err)

	fused := f.Fuse(
		FusionInput{Label: labelSemantic, Results: store.RankedList{}},
		FusionInput{Label: labelLexical, Results: store.RankedList{}},
	)
	assert.Empty(t, fused)

	fused = f.Fuse()
	assert.Empty(t, fused)
}

func TestFuser_TiesBrokenByChunkIDAscending(t *testing.T) {
	f, err := NewFuser(60)
	require.NoError(t, err)

	// Two chunks each at rank 1 of one list: identical fused scores.
	fused := f.Fuse(
		FusionInput{Label: labelSemantic, Results: rankedList(store.KindHNSW, "zebra")},
		FusionInput{Label: labelLexical, Results: rankedList(store.KindLexical, "apple")},
	)

	require.Len(t, fused, 2)
	assert.Equal(t, []string{"apple", "zebra"}, fusedOrder(fused))
}

func TestFuser_ProvenancePreserved(t *testing.T) {
	f, err := NewFuser(60)
	require.NoError(t, err)

	semantic := rankedList(store.KindHNSW, "a", "b")
	semantic[0].RawScore = 0.91
	lexical := rankedList(store.KindLexical, "a")
	lexical[0].RawScore = 7.4

	fused := f.Fuse(
		FusionInput{Label: labelSemantic, Results: semantic},
		FusionInput{Label: labelLexical, Results: lexical},
	)

	var a *FusedResult
	for _, r := range fused {
		if r.ChunkID == "a" {
			a = r
		}
	}
	require.NotNil(t, a)
	assert.ElementsMatch(t, []string{labelSemantic, labelLexical}, a.ContributingLists)
	assert.Len(t, a.Contributions, 2)

	best := a.BestRawScores()
	assert.Equal(t, 0.91, best[store.KindHNSW])
	assert.Equal(t, 7.4, best[store.KindLexical])
}
