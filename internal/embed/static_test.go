package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosineSim(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := NewStaticEmbedder()
	defer e.Close()

	v1, err := e.Embed(ctx, "grocery list for the week")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "grocery list for the week")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
}

func TestStaticEmbedder_UnitLength(t *testing.T) {
	ctx := context.Background()
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(ctx, "property tax assessment appeal")
	require.NoError(t, err)
	require.Len(t, vec, StaticDimensions)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-5)
}

func TestStaticEmbedder_SharedVocabularyIsCloser(t *testing.T) {
	ctx := context.Background()
	e := NewStaticEmbedder()
	defer e.Close()

	tax1, err := e.Embed(ctx, "income tax return filing")
	require.NoError(t, err)
	tax2, err := e.Embed(ctx, "filing the annual tax return")
	require.NoError(t, err)
	soup, err := e.Embed(ctx, "roasted tomato basil soup recipe")
	require.NoError(t, err)

	assert.Greater(t, cosineSim(tax1, tax2), cosineSim(tax1, soup))
}

func TestStaticEmbedder_EmptyInput(t *testing.T) {
	ctx := context.Background()
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(ctx, "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, StaticDimensions), vec)
}

func TestStaticEmbedder_Batch(t *testing.T) {
	ctx := context.Background()
	e := NewStaticEmbedder()
	defer e.Close()

	vecs, err := e.EmbedBatch(ctx, []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	single, err := e.Embed(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[1])
}

func TestStaticEmbedder_ClosedRejectsEmbed(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "anything")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
