// Package cmd provides the CLI commands for Shelfmark.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shelfmark/shelfmark/pkg/version"
)

var (
	configPath string
	debugMode  bool
)

// NewRootCmd creates the root command for the shelfmark CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shelfmark",
		Short: "Personal document retrieval engine",
		Long: `Shelfmark indexes personal documents and answers natural-language
queries with ranked, citable passages.

Retrieval combines semantic (vector) and keyword (BM25) search with
Reciprocal Rank Fusion, compound query decomposition, and optional
cross-encoder reranking.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	cmd.SetVersionTemplate("shelfmark version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func setupLogging() {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
