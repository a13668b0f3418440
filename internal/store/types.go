// Package store provides the storage backends for retrieval: vector search
// (in-process HNSW or remote Qdrant), the lexical BM25 index (Bleve), and the
// SQLite chunk store used to hydrate results for citation rendering.
package store

import (
	"context"
	"time"
)

// AdapterKind identifies which search adapter produced a result.
type AdapterKind string

const (
	// KindLexical is the BM25 keyword index.
	KindLexical AdapterKind = "lexical"
	// KindHNSW is the in-process HNSW vector backend.
	KindHNSW AdapterKind = "hnsw"
	// KindQdrant is the remote Qdrant vector backend.
	KindQdrant AdapterKind = "qdrant"
)

// Metric is the native similarity/distance metric a backend reports.
// The score normaliser dispatches on it to pick a mapping into [0,1].
type Metric string

const (
	// MetricCosine is cosine similarity in [-1,1]; higher is more similar.
	MetricCosine Metric = "cosine"
	// MetricL2 is euclidean distance in [0,inf); lower is more similar.
	MetricL2 Metric = "l2"
	// MetricDot is an unbounded dot product; higher is more similar.
	MetricDot Metric = "dot"
	// MetricUnknownRange is a positive score with no documented bounds
	// (e.g. BM25). Normalised batch-relative.
	MetricUnknownRange Metric = "unknown_range"
)

// BackendCapability declares a backend's native metric and whether it can
// apply metadata filters natively. The engine post-filters results for
// backends that cannot.
type BackendCapability struct {
	Metric         Metric
	SupportsFilter bool
}

// Chunk is an immutable unit of retrievable content, created at ingestion
// time and read-only to the retrieval engine.
type Chunk struct {
	ID         string            // Stable, unique
	DocumentID string            // Source document
	Position   int               // Ordinal within the document
	Text       string            // Passage text
	Embedding  []float32         // Fixed-length vector, may be nil if stored in the backend only
	Metadata   map[string]string // Opaque key-value pairs
	CreatedAt  time.Time
}

// Source records where a scored result came from: the adapter that found it
// and, under query decomposition, the originating sub-query index.
type Source struct {
	Kind AdapterKind
	// SubQuery is the 0-based sub-query index, or -1 outside decomposition.
	SubQuery int
}

// ScoredResult is a single ranked hit from one adapter. Ephemeral: produced
// per query, never persisted.
type ScoredResult struct {
	ChunkID  string
	RawScore float64 // Backend-native value (similarity, distance, BM25 score)
	Score    float64 // Normalised relevance in [0,1]
	Rank     int     // 1-based position within the originating list
	Source   Source
}

// RankedList is an ordered sequence of scored results.
// Invariant: ranks strictly increase from 1 and chunk IDs are unique.
type RankedList []*ScoredResult

// IDs returns the chunk IDs in rank order.
func (l RankedList) IDs() []string {
	ids := make([]string, len(l))
	for i, r := range l {
		ids[i] = r.ChunkID
	}
	return ids
}

// VectorStore is the uniform contract over interchangeable vector backends.
// Each backend reports its capability; scores returned from Search are
// already normalised via the metric-specific transform, with the native
// value preserved in RawScore.
//
// A backend returning zero results yields an empty RankedList, not an error.
// Connections are long-lived and safe for concurrent use.
type VectorStore interface {
	// Add inserts vectors with their IDs. An existing ID is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbours to the query embedding.
	// Filters are applied natively when Capability().SupportsFilter is true
	// and ignored otherwise (the engine post-filters in that case).
	Search(ctx context.Context, query []float32, k int, filters map[string]string) (RankedList, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// Capability reports the backend's native metric and filter support.
	Capability() BackendCapability

	// Kind identifies the adapter for provenance and error reporting.
	Kind() AdapterKind

	// Count returns the number of vectors.
	Count(ctx context.Context) (int, error)

	// Close releases backend connections.
	Close() error
}

// LexicalIndex provides keyword search with BM25-style scoring. Chunks with
// no overlapping terms are excluded from the result list rather than being
// returned with score 0, keeping RankedList dense.
type LexicalIndex interface {
	// Index adds chunks to the index.
	Index(ctx context.Context, chunks []*Chunk) error

	// Search returns chunks matching the query text, scored and normalised.
	Search(ctx context.Context, query string, k int) (RankedList, error)

	// Delete removes chunks from the index.
	Delete(ctx context.Context, ids []string) error

	// DocCount returns the number of indexed chunks.
	DocCount() (int, error)

	// Close releases the index.
	Close() error
}

// ChunkStore persists chunk text and metadata, hydrating ranked chunk IDs
// back into citable passages.
type ChunkStore interface {
	// SaveChunks upserts chunks.
	SaveChunks(ctx context.Context, chunks []*Chunk) error

	// GetChunk returns a single chunk, or nil if absent.
	GetChunk(ctx context.Context, id string) (*Chunk, error)

	// GetChunks returns chunks for the given IDs, in the requested order.
	// Missing IDs are skipped.
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)

	// DeleteChunks removes chunks by ID.
	DeleteChunks(ctx context.Context, ids []string) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Close releases the database handle.
	Close() error
}
