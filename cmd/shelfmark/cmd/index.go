package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelfmark/shelfmark/internal/config"
	"github.com/shelfmark/shelfmark/internal/store"
)

// maxChunkChars caps passage size; paragraphs are merged up to this bound.
const maxChunkChars = 1200

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <path>...",
		Short: "Index text documents",
		Long: `Index plain-text and Markdown documents for retrieval.

Each file is split into paragraph-aligned passages, embedded, and added
to the vector, lexical, and chunk stores.

Examples:
  shelfmark index ~/Documents/notes
  shelfmark index lease.txt insurance.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), args)
		},
	}
	return cmd
}

func runIndex(ctx context.Context, paths []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	b, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	files, err := collectFiles(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no indexable files found (looking for .txt and .md)")
	}

	total := 0
	for _, file := range files {
		chunks, err := chunkFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		if len(chunks) == 0 {
			continue
		}
		if err := b.engine.Index(ctx, chunks); err != nil {
			return fmt.Errorf("index %s: %w", file, err)
		}
		total += len(chunks)
	}

	fmt.Printf("Indexed %d passages from %d files\n", total, len(files))
	return nil
}

func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if indexable(path) {
				files = append(files, path)
			}
			continue
		}
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && indexable(p) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func indexable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// chunkFile splits a document into paragraph-aligned passages.
func chunkFile(path string) ([]*store.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	docID := filepath.Base(path)
	now := time.Now()

	var chunks []*store.Chunk
	var current strings.Builder
	flush := func() {
		text := strings.TrimSpace(current.String())
		current.Reset()
		if text == "" {
			return
		}
		chunks = append(chunks, &store.Chunk{
			ID:         fmt.Sprintf("%s#%d", docID, len(chunks)),
			DocumentID: docID,
			Position:   len(chunks),
			Text:       text,
			Metadata: map[string]string{
				"path":   path,
				"folder": filepath.Base(filepath.Dir(path)),
			},
			CreatedAt: now,
		})
	}

	for _, para := range strings.Split(string(data), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > maxChunkChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks, nil
}
