package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	sherr "github.com/shelfmark/shelfmark/internal/errors"
)

// HNSWConfig configures the in-process vector backend.
type HNSWConfig struct {
	// Dimensions is the fixed embedding length. Required.
	Dimensions int

	// Metric is the native distance metric: "cosine" (default) or "l2".
	Metric Metric

	// M is the HNSW max connections per layer (default: 16).
	M int

	// EfSearch is the query-time search width (default: 20).
	EfSearch int
}

// HNSWStore implements VectorStore on the coder/hnsw pure Go graph.
// Raw scores are cosine similarity in [-1,1] or L2 distance depending on
// the configured metric; normalisation happens before results leave Search.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config HNSWConfig

	// ID mapping (string <-> uint64 graph key)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// hnswMetadata stores ID mappings for persistence.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  HNSWConfig
}

// NewHNSWStore creates a new HNSW-backed vector store.
func NewHNSWStore(cfg HNSWConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, sherr.ConfigError("hnsw store requires positive dimensions", nil)
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.Metric != MetricCosine && cfg.Metric != MetricL2 {
		return nil, sherr.ConfigError(
			fmt.Sprintf("hnsw store supports cosine or l2 metrics, got %q", cfg.Metric), nil)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case MetricL2:
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWStore{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

// Kind identifies the adapter for provenance.
func (s *HNSWStore) Kind() AdapterKind { return KindHNSW }

// Capability reports the native metric. HNSW has no native metadata
// filtering; the engine post-filters.
func (s *HNSWStore) Capability() BackendCapability {
	return BackendCapability{Metric: s.config.Metric, SupportsFilter: false}
}

// Add inserts vectors with their IDs. An existing ID is lazily replaced:
// the old graph node is orphaned rather than deleted, because removing the
// last node breaks the coder/hnsw graph.
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return sherr.ValidationError(
			fmt.Sprintf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors)), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return sherr.BackendUnavailable(string(KindHNSW), fmt.Errorf("store is closed"))
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return sherr.DimensionMismatch(s.config.Dimensions, len(v))
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == MetricCosine {
			normalizeVectorInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}

	return nil
}

// Search finds the k nearest neighbours. Filters are ignored (no native
// filter support). Zero indexed vectors yields an empty list, not an error.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int, filters map[string]string) (RankedList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, sherr.BackendUnavailable(string(KindHNSW), fmt.Errorf("store is closed"))
	}
	if len(query) != s.config.Dimensions {
		return nil, sherr.DimensionMismatch(s.config.Dimensions, len(query))
	}
	if s.graph.Len() == 0 {
		return RankedList{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	if s.config.Metric == MetricCosine {
		normalizeVectorInPlace(normalizedQuery)
	}

	nodes := s.graph.Search(normalizedQuery, k)

	results := make(RankedList, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			// Lazily deleted node still in the graph.
			continue
		}

		distance := float64(s.graph.Distance(normalizedQuery, node.Value))
		raw := distance
		if s.config.Metric == MetricCosine {
			// coder/hnsw cosine distance is 1 - similarity.
			raw = 1 - distance
		}

		results = append(results, &ScoredResult{
			ChunkID:  id,
			RawScore: raw,
			Rank:     len(results) + 1,
			Source:   Source{Kind: KindHNSW, SubQuery: -1},
		})
	}

	return NormaliseList(results, s.config.Metric), nil
}

// Delete removes vectors by ID using lazy deletion: nodes are orphaned in
// the graph and skipped at query time.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return sherr.BackendUnavailable(string(KindHNSW), fmt.Errorf("store is closed"))
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// Count returns the number of live vectors (orphans excluded).
func (s *HNSWStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, sherr.BackendUnavailable(string(KindHNSW), fmt.Errorf("store is closed"))
	}
	return len(s.idMap), nil
}

// Save persists the graph and ID mappings atomically (temp file + rename).
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *HNSWStore) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and ID mappings from disk.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return sherr.Wrap(sherr.ErrCodeCorruptIndex, fmt.Errorf("import graph: %w", err))
	}
	return nil
}

func (s *HNSWStore) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return sherr.Wrap(sherr.ErrCodeCorruptIndex, fmt.Errorf("decode hnsw metadata: %w", err))
	}

	s.idMap = meta.IDMap
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	s.nextKey = meta.NextKey
	s.config = meta.Config
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases resources.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// Verify interface implementation
var _ VectorStore = (*HNSWStore)(nil)

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
