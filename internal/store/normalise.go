package store

// Score normalisation maps backend-native similarity/distance values onto a
// canonical [0,1] relevance scale so results from interchangeable backends
// are directly comparable before fusion.
//
// The mapping is a pure function of (raw score, metric, batch min/max) and
// never depends on call order, which keeps ranking reproducible in tests.

// NormaliseScore maps one raw value onto [0,1] for the given metric.
//
//   - cosine: similarity in [-1,1] -> (s+1)/2
//   - l2: distance in [0,inf) -> 1/(1+d), monotonically decreasing, bounded
//   - dot / unknown_range: batch-relative min-max against the observed
//     extremes within the same query; a degenerate batch (single result or
//     all values equal) maps to 1.0
//
// Results are clamped to [0,1] to absorb floating point drift at the
// boundaries (e.g. cosine similarity of 1.0000001).
func NormaliseScore(raw float64, metric Metric, batchMin, batchMax float64) float64 {
	var s float64
	switch metric {
	case MetricCosine:
		s = (raw + 1) / 2
	case MetricL2:
		if raw < 0 {
			raw = 0
		}
		s = 1 / (1 + raw)
	case MetricDot, MetricUnknownRange:
		if batchMax <= batchMin {
			return 1.0
		}
		s = (raw - batchMin) / (batchMax - batchMin)
	default:
		// Unknown metric behaves like unknown_range.
		if batchMax <= batchMin {
			return 1.0
		}
		s = (raw - batchMin) / (batchMax - batchMin)
	}
	return clamp01(s)
}

// NormaliseList fills the Score field of every result from its RawScore,
// using the batch extremes of the list itself as context for the
// batch-relative metrics. The list is modified in place and returned.
func NormaliseList(list RankedList, metric Metric) RankedList {
	if len(list) == 0 {
		return list
	}

	batchMin, batchMax := list[0].RawScore, list[0].RawScore
	for _, r := range list[1:] {
		if r.RawScore < batchMin {
			batchMin = r.RawScore
		}
		if r.RawScore > batchMax {
			batchMax = r.RawScore
		}
	}

	for _, r := range list {
		r.Score = NormaliseScore(r.RawScore, metric, batchMin, batchMax)
	}
	return list
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
