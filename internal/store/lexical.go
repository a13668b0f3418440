package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"

	sherr "github.com/shelfmark/shelfmark/internal/errors"
)

// BleveLexicalIndex implements LexicalIndex on Bleve v2, which scores hits
// with BM25-style term weighting. Raw scores are unbounded positive values,
// so normalisation is batch-relative (unknown_range).
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// bleveChunkDoc is the document shape handed to Bleve.
type bleveChunkDoc struct {
	Text       string `json:"text"`
	DocumentID string `json:"document_id"`
}

// NewBleveLexicalIndex opens or creates a lexical index. An empty path
// creates an in-memory index.
func NewBleveLexicalIndex(path string) (*BleveLexicalIndex, error) {
	indexMapping := createLexicalMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create directory: %w", mkErr)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, sherr.Wrap(sherr.ErrCodeCorruptIndex,
					fmt.Errorf("corrupted index at %s cannot be cleared: %w", path, removeErr))
			}
			slog.Info("lexical_index_cleared", slog.String("path", path))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("lexical_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, sherr.Wrap(sherr.ErrCodeCorruptIndex,
					fmt.Errorf("corrupted index cannot be cleared: %w", removeErr))
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, sherr.Wrap(sherr.ErrCodeStoreFailed, fmt.Errorf("open lexical index: %w", err))
	}

	return &BleveLexicalIndex{index: idx, path: path}, nil
}

// createLexicalMapping builds the index mapping with the English analyzer
// (unicode tokenization, lowercasing, stop words, stemming).
func createLexicalMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = en.AnalyzerName
	docMapping.AddFieldMappingsAt("text", textField)

	// Document ID is matched exactly, never stemmed.
	idField := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("document_id", idField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// validateIndexIntegrity checks a Bleve index directory before opening.
// Returns nil when the index is absent (it will be created) or healthy.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError checks if an error indicates Bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// Index adds chunks to the index in a single batch.
func (b *BleveLexicalIndex) Index(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return sherr.BackendUnavailable(string(KindLexical), fmt.Errorf("index is closed"))
	}

	batch := b.index.NewBatch()
	for _, chunk := range chunks {
		doc := bleveChunkDoc{Text: chunk.Text, DocumentID: chunk.DocumentID}
		if err := batch.Index(chunk.ID, doc); err != nil {
			return sherr.Wrap(sherr.ErrCodeStoreFailed,
				fmt.Errorf("index chunk %s: %w", chunk.ID, err))
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return sherr.Wrap(sherr.ErrCodeStoreFailed, fmt.Errorf("execute batch: %w", err))
	}
	return nil
}

// Search returns chunks matching the query text, scored and normalised.
// Chunks with no overlapping terms are simply not in Bleve's hit list, which
// keeps the RankedList dense. An empty or blank query yields no results.
func (b *BleveLexicalIndex) Search(ctx context.Context, query string, k int) (RankedList, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, sherr.BackendUnavailable(string(KindLexical), fmt.Errorf("index is closed"))
	}
	if strings.TrimSpace(query) == "" {
		return RankedList{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("text")

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = k

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, sherr.BackendUnavailable(string(KindLexical), fmt.Errorf("search: %w", err))
	}

	results := make(RankedList, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &ScoredResult{
			ChunkID:  hit.ID,
			RawScore: hit.Score,
			Rank:     len(results) + 1,
			Source:   Source{Kind: KindLexical, SubQuery: -1},
		})
	}

	return NormaliseList(results, MetricUnknownRange), nil
}

// Delete removes chunks from the index.
func (b *BleveLexicalIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return sherr.BackendUnavailable(string(KindLexical), fmt.Errorf("index is closed"))
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}

	if err := b.index.Batch(batch); err != nil {
		return sherr.Wrap(sherr.ErrCodeStoreFailed, fmt.Errorf("delete chunks: %w", err))
	}
	return nil
}

// DocCount returns the number of indexed chunks.
func (b *BleveLexicalIndex) DocCount() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, sherr.BackendUnavailable(string(KindLexical), fmt.Errorf("index is closed"))
	}

	count, err := b.index.DocCount()
	if err != nil {
		return 0, sherr.Wrap(sherr.ErrCodeStoreFailed, err)
	}
	return int(count), nil
}

// Close closes the index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// Verify interface implementation
var _ LexicalIndex = (*BleveLexicalIndex)(nil)
