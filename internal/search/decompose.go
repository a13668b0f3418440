package search

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Decomposer splits a compound query into independently searchable
// sub-queries. Decomposition is total: every input yields at least one
// SubQuery, falling back to the whole query with weight 1.0.
type Decomposer interface {
	Decompose(ctx context.Context, query string) []SubQuery
}

// RuleDecomposer splits queries on comparison connectives ("vs",
// "compared to") and on conjunctions ("and", "or") joining distinct noun
// phrases. Deterministic, fast, no external dependencies.
type RuleDecomposer struct {
	comparisonPattern  *regexp.Regexp
	conjunctionPattern *regexp.Regexp
	quotedPattern      *regexp.Regexp
}

// NewRuleDecomposer creates the pattern-based decomposer.
func NewRuleDecomposer() *RuleDecomposer {
	return &RuleDecomposer{
		// "X vs Y", "X versus Y", "X compared to Y", "X compared with Y"
		comparisonPattern: regexp.MustCompile(`(?i)\s+(?:vs\.?|versus|compared\s+(?:to|with))\s+`),

		// "X and Y", "X or Y"
		conjunctionPattern: regexp.MustCompile(`(?i)\s+(?:and|or)\s+`),

		// Quoted phrases are exact-match intent, never decomposed.
		quotedPattern: regexp.MustCompile(`^["'].*["']$`),
	}
}

// Decompose splits the query, or returns it whole as a single sub-query
// when no pattern applies.
func (d *RuleDecomposer) Decompose(ctx context.Context, query string) []SubQuery {
	query = strings.TrimSpace(query)
	whole := []SubQuery{{Text: query, Weight: 1.0, Origin: OriginRule}}

	if query == "" || d.quotedPattern.MatchString(query) {
		return whole
	}

	// Comparison connectives bind strongest: "insurance vs warranty claims"
	// is two aspects even when each side is a single word.
	if parts := d.splitDistinct(d.comparisonPattern, query); len(parts) > 1 {
		return subQueriesFromParts(parts)
	}

	if parts := d.splitDistinct(d.conjunctionPattern, query); len(parts) > 1 {
		return subQueriesFromParts(parts)
	}

	return whole
}

// splitDistinct splits on the pattern and keeps the split only when it
// produces two or more distinct non-empty phrases.
func (d *RuleDecomposer) splitDistinct(pattern *regexp.Regexp, query string) []string {
	raw := pattern.Split(query, -1)
	if len(raw) < 2 {
		return nil
	}

	seen := make(map[string]bool, len(raw))
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := strings.ToLower(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		parts = append(parts, p)
	}

	if len(parts) < 2 {
		return nil
	}
	return parts
}

func subQueriesFromParts(parts []string) []SubQuery {
	subs := make([]SubQuery, len(parts))
	for i, p := range parts {
		subs[i] = SubQuery{Text: p, Weight: 1.0, Origin: OriginRule}
	}
	return subs
}

// Verify interface implementation
var _ Decomposer = (*RuleDecomposer)(nil)

// DecomposeFunc is an external decomposition strategy, typically backed by
// a language model. Treated as a black box returning sub-queries.
type DecomposeFunc func(ctx context.Context, query string) ([]SubQuery, error)

// LLMDecomposer delegates decomposition to an injected function and falls
// back to the rule-based decomposer when the function fails, returns
// nothing, or returns invalid weights. The fallback preserves totality.
type LLMDecomposer struct {
	fn       DecomposeFunc
	fallback Decomposer
	logger   *slog.Logger
}

// NewLLMDecomposer creates an LLM-backed decomposer with a rule-based
// fallback.
func NewLLMDecomposer(fn DecomposeFunc, logger *slog.Logger) *LLMDecomposer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMDecomposer{
		fn:       fn,
		fallback: NewRuleDecomposer(),
		logger:   logger,
	}
}

// Decompose runs the external strategy, validating its output before use.
func (d *LLMDecomposer) Decompose(ctx context.Context, query string) []SubQuery {
	if d.fn == nil {
		return d.fallback.Decompose(ctx, query)
	}

	subs, err := d.fn(ctx, query)
	if err != nil {
		d.logger.Warn("llm_decomposition_failed",
			slog.String("error", err.Error()))
		return d.fallback.Decompose(ctx, query)
	}
	if len(subs) == 0 {
		return d.fallback.Decompose(ctx, query)
	}

	for i := range subs {
		if strings.TrimSpace(subs[i].Text) == "" || subs[i].Weight <= 0 {
			d.logger.Warn("llm_decomposition_invalid",
				slog.Int("sub_query", i))
			return d.fallback.Decompose(ctx, query)
		}
		subs[i].Origin = OriginLLM
	}
	return subs
}

// Verify interface implementation
var _ Decomposer = (*LLMDecomposer)(nil)
