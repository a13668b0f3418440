package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shelfmark/shelfmark/internal/config"
	"github.com/shelfmark/shelfmark/internal/embed"
	"github.com/shelfmark/shelfmark/internal/search"
	"github.com/shelfmark/shelfmark/internal/store"
)

// backends bundles the wired adapters behind the engine, kept so commands
// can persist the in-process vector index on exit.
type backends struct {
	engine   *search.Engine
	hnsw     *store.HNSWStore // nil when the qdrant backend is configured
	hnswPath string
}

// buildEngine wires adapters and the retrieval engine from configuration.
func buildEngine(ctx context.Context, cfg *config.Config) (*backends, error) {
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	embedder := buildEmbedder(cfg)
	dims := embedder.Dimensions()

	b := &backends{}

	var vector store.VectorStore
	switch cfg.Vector.Backend {
	case "qdrant":
		qdrant, err := store.NewQdrantStore(ctx, store.QdrantConfig{
			Addr:       cfg.Vector.QdrantAddr,
			Collection: cfg.Vector.QdrantCollection,
			Dimensions: dims,
			Metric:     store.Metric(cfg.Vector.Metric),
		})
		if err != nil {
			return nil, err
		}
		vector = qdrant
	default:
		hnsw, err := store.NewHNSWStore(store.HNSWConfig{
			Dimensions: dims,
			Metric:     store.Metric(cfg.Vector.Metric),
			M:          cfg.Vector.HNSWM,
			EfSearch:   cfg.Vector.HNSWEfSearch,
		})
		if err != nil {
			return nil, err
		}
		b.hnsw = hnsw
		b.hnswPath = filepath.Join(cfg.Paths.DataDir, "vectors.hnsw")
		if _, err := os.Stat(b.hnswPath); err == nil {
			if err := hnsw.Load(b.hnswPath); err != nil {
				return nil, err
			}
		}
		vector = hnsw
	}

	lexical, err := store.NewBleveLexicalIndex(filepath.Join(cfg.Paths.DataDir, "lexical.bleve"))
	if err != nil {
		return nil, err
	}

	chunks, err := store.NewSQLiteChunkStore(filepath.Join(cfg.Paths.DataDir, "chunks.db"))
	if err != nil {
		return nil, err
	}

	engine, err := search.NewEngine(vector, lexical, chunks, embedder, search.EngineConfig{
		RRFConstant:    cfg.Search.RRFConstant,
		MaxConcurrency: cfg.Search.MaxConcurrency,
		AdapterTimeout: cfg.Search.AdapterTimeout,
		DecayFactor:    cfg.Search.DecayFactor,
		DefaultLimit:   cfg.Search.DefaultLimit,
	})
	if err != nil {
		return nil, err
	}

	b.engine = engine
	return b, nil
}

func buildEmbedder(cfg *config.Config) embed.Embedder {
	var inner embed.Embedder
	switch cfg.Embeddings.Provider {
	case "static":
		inner = embed.NewStaticEmbedder()
	default:
		inner = embed.NewOllamaEmbedder(embed.OllamaConfig{
			Host:       cfg.Embeddings.OllamaHost,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			BatchSize:  cfg.Embeddings.BatchSize,
		})
	}
	return embed.NewCachedEmbedder(inner, cfg.Embeddings.CacheSize)
}

// close persists the in-process vector index and releases every backend.
func (b *backends) close() error {
	if b.hnsw != nil && b.hnswPath != "" {
		if err := b.hnsw.Save(b.hnswPath); err != nil {
			return err
		}
	}
	return b.engine.Close()
}
