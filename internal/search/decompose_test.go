package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subTexts(subs []SubQuery) []string {
	texts := make([]string, len(subs))
	for i, s := range subs {
		texts[i] = s.Text
	}
	return texts
}

func TestRuleDecomposer_ComparisonConnectives(t *testing.T) {
	ctx := context.Background()
	d := NewRuleDecomposer()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"vs", "renters insurance vs homeowners insurance", []string{"renters insurance", "homeowners insurance"}},
		{"vs with period", "roth ira vs. traditional ira", []string{"roth ira", "traditional ira"}},
		{"versus", "leasing versus buying a car", []string{"leasing", "buying a car"}},
		{"compared to", "fixed mortgage compared to variable mortgage", []string{"fixed mortgage", "variable mortgage"}},
		{"compared with", "index funds compared with managed funds", []string{"index funds", "managed funds"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := d.Decompose(ctx, tt.query)
			assert.Equal(t, tt.want, subTexts(subs))
			for _, s := range subs {
				assert.Equal(t, 1.0, s.Weight)
				assert.Equal(t, OriginRule, s.Origin)
			}
		})
	}
}

func TestRuleDecomposer_Conjunctions(t *testing.T) {
	ctx := context.Background()
	d := NewRuleDecomposer()

	subs := d.Decompose(ctx, "passport renewal and visa requirements")
	assert.Equal(t, []string{"passport renewal", "visa requirements"}, subTexts(subs))

	subs = d.Decompose(ctx, "dentist invoice or insurance statement")
	assert.Equal(t, []string{"dentist invoice", "insurance statement"}, subTexts(subs))
}

func TestRuleDecomposer_NoPatternReturnsWholeQuery(t *testing.T) {
	ctx := context.Background()
	d := NewRuleDecomposer()

	subs := d.Decompose(ctx, "mortgage statement from january")
	require.Len(t, subs, 1)
	assert.Equal(t, "mortgage statement from january", subs[0].Text)
	assert.Equal(t, 1.0, subs[0].Weight)
}

func TestRuleDecomposer_Totality(t *testing.T) {
	ctx := context.Background()
	d := NewRuleDecomposer()

	inputs := []string{
		"", "   ", "and", "vs", "a vs a", "and and and",
		"one word", "\"quoted and phrase\"", "tax and tax",
	}
	for _, q := range inputs {
		subs := d.Decompose(ctx, q)
		assert.GreaterOrEqual(t, len(subs), 1, "query %q must yield at least one sub-query", q)
		for _, s := range subs {
			assert.Greater(t, s.Weight, 0.0)
		}
	}
}

func TestRuleDecomposer_QuotedPhraseNotDecomposed(t *testing.T) {
	ctx := context.Background()
	d := NewRuleDecomposer()

	subs := d.Decompose(ctx, `"terms and conditions"`)
	require.Len(t, subs, 1)
	assert.Equal(t, `"terms and conditions"`, subs[0].Text)
}

func TestRuleDecomposer_DuplicatePartsCollapse(t *testing.T) {
	ctx := context.Background()
	d := NewRuleDecomposer()

	// Both sides identical: nothing to compare, keep the whole query.
	subs := d.Decompose(ctx, "insurance vs insurance")
	require.Len(t, subs, 1)
	assert.Equal(t, "insurance vs insurance", subs[0].Text)
}

func TestLLMDecomposer_UsesExternalStrategy(t *testing.T) {
	ctx := context.Background()
	d := NewLLMDecomposer(func(ctx context.Context, query string) ([]SubQuery, error) {
		return []SubQuery{
			{Text: "first aspect", Weight: 1.0},
			{Text: "second aspect", Weight: 0.8},
		}, nil
	}, nil)

	subs := d.Decompose(ctx, "compound query")
	require.Len(t, subs, 2)
	assert.Equal(t, OriginLLM, subs[0].Origin)
	assert.Equal(t, OriginLLM, subs[1].Origin)
}

func TestLLMDecomposer_FallsBackOnError(t *testing.T) {
	ctx := context.Background()
	d := NewLLMDecomposer(func(ctx context.Context, query string) ([]SubQuery, error) {
		return nil, errors.New("model not loaded")
	}, nil)

	subs := d.Decompose(ctx, "lease agreement vs purchase contract")
	assert.Equal(t, []string{"lease agreement", "purchase contract"}, subTexts(subs))
	assert.Equal(t, OriginRule, subs[0].Origin)
}

func TestLLMDecomposer_FallsBackOnInvalidOutput(t *testing.T) {
	ctx := context.Background()

	cases := map[string]DecomposeFunc{
		"empty result": func(ctx context.Context, q string) ([]SubQuery, error) {
			return []SubQuery{}, nil
		},
		"zero weight": func(ctx context.Context, q string) ([]SubQuery, error) {
			return []SubQuery{{Text: "aspect", Weight: 0}}, nil
		},
		"blank text": func(ctx context.Context, q string) ([]SubQuery, error) {
			return []SubQuery{{Text: "  ", Weight: 1}}, nil
		},
		"nil function": nil,
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			d := NewLLMDecomposer(fn, nil)
			subs := d.Decompose(ctx, "some query")
			require.GreaterOrEqual(t, len(subs), 1)
			assert.Equal(t, OriginRule, subs[0].Origin)
		})
	}
}
