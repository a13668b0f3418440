package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shelfmark/shelfmark/internal/config"
	"github.com/shelfmark/shelfmark/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	mode      string
	strategy  string
	limit     int
	decompose bool
	rerank    bool
	filters   []string
	format    string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documents",
		Long: `Search indexed documents with hybrid retrieval.

Semantic and keyword results are fused with Reciprocal Rank Fusion.
Compound queries ("renters insurance vs homeowners insurance") can be
decomposed into sub-queries and re-aggregated.

Examples:
  shelfmark search "lease renewal terms"
  shelfmark search "roth ira vs traditional ira" --decompose --strategy sum
  shelfmark search "water damage claim" --mode keyword --limit 5
  shelfmark search "tax deductions" --filter folder=finance --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Search mode: hybrid, semantic, keyword")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "max", "Aggregation strategy: max, sum, weighted")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVarP(&opts.decompose, "decompose", "d", false, "Decompose compound queries into sub-queries")
	cmd.Flags().BoolVarP(&opts.rerank, "rerank", "r", false, "Rerank the final candidate set")
	cmd.Flags().StringSliceVar(&opts.filters, "filter", nil, "Metadata filter as key=value (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, query string, opts searchOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	filters, err := parseFilters(opts.filters)
	if err != nil {
		return err
	}

	b, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.engine.Close()

	resp, err := b.engine.Search(ctx, query, search.Options{
		Mode:      search.Mode(opts.mode),
		Strategy:  search.Strategy(opts.strategy),
		Limit:     opts.limit,
		Decompose: opts.decompose,
		Rerank:    opts.rerank,
		Filters:   filters,
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	printResults(resp)
	return nil
}

func parseFilters(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	filters := make(map[string]string, len(raw))
	for _, f := range raw {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", f)
		}
		filters[key] = value
	}
	return filters, nil
}

func printResults(resp *search.Response) {
	if len(resp.Results) == 0 {
		fmt.Println("No results.")
		return
	}

	if len(resp.SubQueries) > 1 {
		fmt.Println("Sub-queries:")
		for i, sub := range resp.SubQueries {
			fmt.Printf("  [%d] %s (weight %.2f, %s)\n", i, sub.Text, sub.Weight, sub.Origin)
		}
		fmt.Println()
	}

	for i, r := range resp.Results {
		fmt.Printf("%d. %s  (score %.4f)\n", i+1, r.ChunkID, r.Score)
		if r.Chunk != nil {
			fmt.Printf("   %s\n", excerpt(r.Chunk.Text, 160))
		}

		sources := make([]string, 0, len(r.Provenance))
		seen := map[string]bool{}
		for _, p := range r.Provenance {
			label := string(p.Source.Kind)
			if p.Source.SubQuery >= 0 && len(resp.SubQueries) > 1 {
				label = fmt.Sprintf("%s/sq%d", p.Source.Kind, p.Source.SubQuery)
			}
			if !seen[label] {
				seen[label] = true
				sources = append(sources, label)
			}
		}
		fmt.Printf("   via %s\n", strings.Join(sources, ", "))
	}

	if len(resp.Degraded) > 0 {
		fmt.Fprintf(os.Stderr, "\nwarning: skipped unavailable adapters: %s\n",
			strings.Join(resp.Degraded, ", "))
	}
}

func excerpt(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
