package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shelfmark/shelfmark/internal/config"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

func runStatus(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	b, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.engine.Close()

	stats, err := b.engine.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Data dir:        %s\n", cfg.Paths.DataDir)
	fmt.Printf("Vector backend:  %s (%d vectors)\n", stats.VectorBackend, stats.VectorCount)
	fmt.Printf("Lexical index:   %d passages\n", stats.LexicalCount)
	fmt.Printf("Chunk store:     %d passages\n", stats.ChunkCount)
	fmt.Printf("Embedder:        %s (%d dims, available: %v)\n",
		stats.EmbedderModel, stats.EmbedderDims, stats.EmbedderReady)
	return nil
}
