package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormaliseScore_Cosine(t *testing.T) {
	tests := []struct {
		name string
		raw  float64
		want float64
	}{
		{"identical vectors", 1.0, 1.0},
		{"orthogonal", 0.0, 0.5},
		{"opposite", -1.0, 0.0},
		{"partial", 0.5, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormaliseScore(tt.raw, MetricCosine, 0, 0)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestNormaliseScore_CosineClampsFloatDrift(t *testing.T) {
	assert.Equal(t, 1.0, NormaliseScore(1.0000001, MetricCosine, 0, 0))
	assert.Equal(t, 0.0, NormaliseScore(-1.0000001, MetricCosine, 0, 0))
}

func TestNormaliseScore_L2(t *testing.T) {
	assert.InDelta(t, 1.0, NormaliseScore(0, MetricL2, 0, 0), 1e-9)
	assert.InDelta(t, 0.5, NormaliseScore(1, MetricL2, 0, 0), 1e-9)
	assert.InDelta(t, 0.25, NormaliseScore(3, MetricL2, 0, 0), 1e-9)

	// Monotonically decreasing in distance.
	prev := 1.1
	for d := 0.0; d < 100; d += 0.5 {
		s := NormaliseScore(d, MetricL2, 0, 0)
		assert.Less(t, s, prev)
		prev = s
	}
}

func TestNormaliseScore_DotBatchRelative(t *testing.T) {
	// Min-max scaling against the batch extremes.
	assert.InDelta(t, 1.0, NormaliseScore(12.5, MetricDot, -3.0, 12.5), 1e-9)
	assert.InDelta(t, 0.0, NormaliseScore(-3.0, MetricDot, -3.0, 12.5), 1e-9)
	assert.InDelta(t, 0.5, NormaliseScore(4.75, MetricDot, -3.0, 12.5), 1e-9)
}

func TestNormaliseScore_DegenerateBatchEmitsOne(t *testing.T) {
	// Single-result batch: min == max.
	assert.Equal(t, 1.0, NormaliseScore(7.3, MetricDot, 7.3, 7.3))
	assert.Equal(t, 1.0, NormaliseScore(0.2, MetricUnknownRange, 0.2, 0.2))
}

func TestNormaliseScore_AlwaysInRange(t *testing.T) {
	metrics := []Metric{MetricCosine, MetricL2, MetricDot, MetricUnknownRange}
	raws := []float64{-1000, -1, -0.5, 0, 0.5, 1, 2, 1000}

	for _, m := range metrics {
		for _, raw := range raws {
			s := NormaliseScore(raw, m, -1000, 1000)
			assert.GreaterOrEqual(t, s, 0.0, "metric=%s raw=%f", m, raw)
			assert.LessOrEqual(t, s, 1.0, "metric=%s raw=%f", m, raw)
		}
	}
}

func TestNormaliseScore_PureFunction(t *testing.T) {
	// Same inputs, same output, regardless of how often or in what order.
	first := NormaliseScore(0.42, MetricCosine, 0, 0)
	NormaliseScore(-0.9, MetricCosine, 0, 0)
	NormaliseScore(0.1, MetricL2, 0, 0)
	again := NormaliseScore(0.42, MetricCosine, 0, 0)
	assert.Equal(t, first, again)
}

func TestNormaliseList_FillsScoresFromBatch(t *testing.T) {
	list := RankedList{
		{ChunkID: "a", RawScore: 10, Rank: 1},
		{ChunkID: "b", RawScore: 5, Rank: 2},
		{ChunkID: "c", RawScore: 0, Rank: 3},
	}

	NormaliseList(list, MetricDot)

	assert.InDelta(t, 1.0, list[0].Score, 1e-9)
	assert.InDelta(t, 0.5, list[1].Score, 1e-9)
	assert.InDelta(t, 0.0, list[2].Score, 1e-9)
}

func TestNormaliseList_EmptyIsNoop(t *testing.T) {
	assert.Empty(t, NormaliseList(RankedList{}, MetricCosine))
}

func TestNormaliseList_SingleDotResult(t *testing.T) {
	list := RankedList{{ChunkID: "only", RawScore: 123.4, Rank: 1}}
	NormaliseList(list, MetricDot)
	assert.Equal(t, 1.0, list[0].Score)
}
