package search

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shelfmark/shelfmark/internal/embed"
	sherr "github.com/shelfmark/shelfmark/internal/errors"
	"github.com/shelfmark/shelfmark/internal/store"
)

// Fusion list labels.
const (
	labelSemantic = "semantic"
	labelLexical  = "lexical"
)

// EngineConfig tunes the retrieval engine.
type EngineConfig struct {
	// RRFConstant is the RRF smoothing parameter (default: 60).
	RRFConstant int

	// MaxConcurrency bounds parallel sub-query fusions (default: 4).
	MaxConcurrency int

	// AdapterTimeout is the per-adapter-call deadline. An adapter exceeding
	// it is skipped as unavailable rather than blocking the query
	// (default: 5s).
	AdapterTimeout time.Duration

	// DecayFactor is the geometric decay for the weighted strategy
	// (default: 0.7).
	DecayFactor float64

	// DefaultLimit is the result count when the caller passes none
	// (default: 10).
	DefaultLimit int

	// CandidateFactor multiplies the limit to size the per-adapter fetch
	// and the reranker's candidate pool (default: 3).
	CandidateFactor int
}

func (c *EngineConfig) applyDefaults() {
	if c.RRFConstant == 0 {
		c.RRFConstant = DefaultRRFConstant
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 4
	}
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = 5 * time.Second
	}
	if c.DecayFactor == 0 {
		c.DecayFactor = DefaultDecayFactor
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 10
	}
	if c.CandidateFactor <= 0 {
		c.CandidateFactor = 3
	}
}

// Engine is the retrieval and ranking façade. Stateless across queries:
// each call runs start-to-finish with no shared mutable state beyond the
// long-lived backend connections owned by the adapters.
type Engine struct {
	vector   store.VectorStore
	lexical  store.LexicalIndex
	chunks   store.ChunkStore
	embedder embed.Embedder

	fuser      *Fuser
	decomposer Decomposer
	reranker   Reranker

	config EngineConfig
	logger *slog.Logger
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithDecomposer replaces the rule-based decomposer, e.g. with an
// LLM-backed strategy.
func WithDecomposer(d Decomposer) EngineOption {
	return func(e *Engine) { e.decomposer = d }
}

// WithReranker installs a second-pass reranker.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine wires the adapters into a retrieval engine. Configuration
// errors (bad RRF constant) surface here, at startup.
func NewEngine(
	vector store.VectorStore,
	lexical store.LexicalIndex,
	chunks store.ChunkStore,
	embedder embed.Embedder,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	config.applyDefaults()

	fuser, err := NewFuser(config.RRFConstant)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		vector:     vector,
		lexical:    lexical,
		chunks:     chunks,
		embedder:   embedder,
		fuser:      fuser,
		decomposer: NewRuleDecomposer(),
		reranker:   &NoOpReranker{},
		config:     config,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Index embeds and stores chunks across every backend: the chunk store for
// hydration, the vector backend for semantic search, and the lexical index
// for keyword search.
func (e *Engine) Index(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	// Embed chunks that arrived without precomputed vectors.
	missingIdx := make([]int, 0)
	missingTexts := make([]string, 0)
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			missingIdx = append(missingIdx, i)
			missingTexts = append(missingTexts, c.Text)
		}
	}
	if len(missingTexts) > 0 {
		vectors, err := e.embedder.EmbedBatch(ctx, missingTexts)
		if err != nil {
			return sherr.Wrap(sherr.ErrCodeEmbeddingFailed, err)
		}
		for j, i := range missingIdx {
			chunks[i].Embedding = vectors[j]
		}
	}

	if err := e.chunks.SaveChunks(ctx, chunks); err != nil {
		return err
	}

	if err := e.addVectors(ctx, chunks); err != nil {
		return err
	}

	if err := e.lexical.Index(ctx, chunks); err != nil {
		return err
	}

	e.logger.Info("chunks_indexed",
		slog.Int("count", len(chunks)),
		slog.String("vector_backend", string(e.vector.Kind())))
	return nil
}

// metadataAdder is implemented by vector backends that persist chunk
// metadata for native filtering.
type metadataAdder interface {
	AddWithMetadata(ctx context.Context, chunks []*store.Chunk) error
}

func (e *Engine) addVectors(ctx context.Context, chunks []*store.Chunk) error {
	if adder, ok := e.vector.(metadataAdder); ok && e.vector.Capability().SupportsFilter {
		return adder.AddWithMetadata(ctx, chunks)
	}

	ids := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		vectors[i] = c.Embedding
	}
	return e.vector.Add(ctx, ids, vectors)
}

// Delete removes chunks from every backend.
func (e *Engine) Delete(ctx context.Context, ids []string) error {
	if err := e.vector.Delete(ctx, ids); err != nil {
		return err
	}
	if err := e.lexical.Delete(ctx, ids); err != nil {
		return err
	}
	return e.chunks.DeleteChunks(ctx, ids)
}

// Search runs a query through decomposition, per-sub-query hybrid fusion,
// aggregation, optional reranking, and hydration. Partial adapter failures
// degrade the result set; only a total failure is an error.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()
	queryID := uuid.NewString()

	if query == "" {
		return nil, sherr.ValidationError("query must not be empty", nil)
	}
	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyMax
	}
	if opts.Limit <= 0 {
		opts.Limit = e.config.DefaultLimit
	}

	aggregator, err := NewAggregator(opts.Strategy, e.config.DecayFactor)
	if err != nil {
		return nil, err
	}

	subs := []SubQuery{{Text: query, Weight: 1.0, Origin: OriginRule}}
	if opts.Decompose {
		subs = e.decomposer.Decompose(ctx, query)
	}

	e.logger.Debug("search_started",
		slog.String("query_id", queryID),
		slog.String("mode", string(opts.Mode)),
		slog.Int("sub_queries", len(subs)))

	fusedLists, degraded, err := e.runSubQueries(ctx, subs, opts)
	if err != nil {
		return nil, err
	}

	aggregated, err := aggregator.Aggregate(fusedLists, subs)
	if err != nil {
		return nil, err
	}

	results, reranked, err := e.finalize(ctx, query, aggregated, opts)
	if err != nil {
		return nil, err
	}

	took := time.Since(start)
	e.logger.Info("search_completed",
		slog.String("query_id", queryID),
		slog.Int("results", len(results)),
		slog.Bool("reranked", reranked),
		slog.Duration("took", took))

	return &Response{
		QueryID:    queryID,
		Results:    results,
		SubQueries: subs,
		Degraded:   degraded,
		Reranked:   reranked,
		Took:       took,
	}, nil
}

// runSubQueries fans out one fusion per sub-query, bounded by the
// configured concurrency. Sub-query execution order is unspecified; the
// final ordering stays deterministic because fusion and aggregation break
// ties by chunk ID.
func (e *Engine) runSubQueries(ctx context.Context, subs []SubQuery, opts Options) ([][]*FusedResult, []string, error) {
	fusedLists := make([][]*FusedResult, len(subs))
	degradedPer := make([][]string, len(subs))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, e.config.MaxConcurrency)

	for i, sub := range subs {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			fused, degraded, err := e.runOneSubQuery(gctx, sub, i, opts)
			if err != nil {
				return err
			}
			fusedLists[i] = fused
			degradedPer[i] = degraded
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool)
	degraded := make([]string, 0)
	for _, per := range degradedPer {
		for _, kind := range per {
			if !seen[kind] {
				seen[kind] = true
				degraded = append(degraded, kind)
			}
		}
	}
	sort.Strings(degraded)

	return fusedLists, degraded, nil
}

// runOneSubQuery queries the adapters selected by the mode and fuses their
// lists. A single unreachable adapter contributes nothing; all adapters
// failing is NoSearchableBackend.
func (e *Engine) runOneSubQuery(ctx context.Context, sub SubQuery, subIdx int, opts Options) ([]*FusedResult, []string, error) {
	fetchK := opts.Limit * e.config.CandidateFactor

	type attempt struct {
		kind   string
		label  string
		search func() (store.RankedList, error)
		list   store.RankedList
		err    error
	}

	attempts := make([]*attempt, 0, 2)
	if opts.Mode != ModeKeyword {
		attempts = append(attempts, &attempt{
			kind:  string(e.vector.Kind()),
			label: labelSemantic,
			search: func() (store.RankedList, error) {
				return e.semanticSearch(ctx, sub.Text, fetchK, opts.Filters)
			},
		})
	}
	if opts.Mode != ModeSemantic {
		attempts = append(attempts, &attempt{
			kind:  string(store.KindLexical),
			label: labelLexical,
			search: func() (store.RankedList, error) {
				return e.lexicalSearch(ctx, sub.Text, fetchK)
			},
		})
	}

	var wg sync.WaitGroup
	for _, a := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.list, a.err = a.search()
		}()
	}
	wg.Wait()

	attempted := make([]string, 0, len(attempts))
	failed := make([]string, 0, len(attempts))
	inputs := make([]FusionInput, 0, len(attempts))
	for _, a := range attempts {
		attempted = append(attempted, a.kind)
		switch {
		case a.err != nil && sherr.IsFatal(a.err):
			return nil, nil, a.err
		case a.err != nil:
			failed = append(failed, a.kind)
			e.logger.Warn("adapter_skipped",
				slog.String("adapter", a.kind),
				slog.Int("sub_query", subIdx),
				slog.String("error", a.err.Error()))
		default:
			stampSubQuery(a.list, subIdx)
			inputs = append(inputs, FusionInput{Label: a.label, Results: a.list})
		}
	}

	if len(failed) == len(attempted) && len(attempted) > 0 {
		return nil, nil, sherr.NoSearchableBackend(attempted)
	}

	return e.fuser.Fuse(inputs...), failed, nil
}

func (e *Engine) semanticSearch(ctx context.Context, text string, k int, filters map[string]string) (store.RankedList, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.AdapterTimeout)
	defer cancel()

	vector, err := e.embedder.Embed(callCtx, text)
	if err != nil {
		return nil, sherr.BackendUnavailable(string(e.vector.Kind()), err)
	}

	nativeFilters := filters
	if !e.vector.Capability().SupportsFilter {
		nativeFilters = nil
	}

	list, err := e.vector.Search(callCtx, vector, k, nativeFilters)
	if err != nil {
		if sherr.IsFatal(err) {
			return nil, err
		}
		return nil, sherr.BackendUnavailable(string(e.vector.Kind()), err)
	}
	return list, nil
}

func (e *Engine) lexicalSearch(ctx context.Context, text string, k int) (store.RankedList, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.AdapterTimeout)
	defer cancel()

	list, err := e.lexical.Search(callCtx, text, k)
	if err != nil {
		return nil, sherr.BackendUnavailable(string(store.KindLexical), err)
	}
	return list, nil
}

func stampSubQuery(list store.RankedList, subIdx int) {
	for _, r := range list {
		r.Source.SubQuery = subIdx
	}
}

// finalize hydrates chunk content, applies metadata post-filtering for
// backends without native filter support, optionally reranks, and cuts the
// list to the requested limit.
func (e *Engine) finalize(ctx context.Context, query string, aggregated []*AggregatedResult, opts Options) ([]*Result, bool, error) {
	if len(aggregated) == 0 {
		return []*Result{}, false, nil
	}

	ids := make([]string, len(aggregated))
	byID := make(map[string]*AggregatedResult, len(aggregated))
	for i, agg := range aggregated {
		ids[i] = agg.ChunkID
		byID[agg.ChunkID] = agg
	}

	chunks, err := e.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, false, err
	}

	// Post-filter by chunk metadata before sizing the candidate pool, so a
	// selective filter can reach matches deeper in the aggregate. Backends
	// with native filtering have already narrowed their own lists; this pass
	// covers the rest (and the lexical list, which never filters natively).
	kept := make([]*store.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if matchesFilters(chunk, opts.Filters) {
			kept = append(kept, chunk)
		}
	}

	poolSize := opts.Limit * e.config.CandidateFactor
	if len(kept) > poolSize {
		kept = kept[:poolSize]
	}

	reranked := false
	order := kept
	if opts.Rerank && e.reranker.Available(ctx) {
		candidates := make([]Candidate, len(kept))
		for i, chunk := range kept {
			candidates[i] = Candidate{ChunkID: chunk.ID, Text: chunk.Text}
		}
		rankedIDs, err := e.reranker.Rerank(ctx, query, candidates, opts.Limit)
		if err != nil {
			// A failing reranker degrades to the fused order rather than
			// failing the query.
			e.logger.Warn("rerank_skipped", slog.String("error", err.Error()))
		} else {
			chunkByID := make(map[string]*store.Chunk, len(kept))
			for _, chunk := range kept {
				chunkByID[chunk.ID] = chunk
			}
			order = make([]*store.Chunk, 0, len(rankedIDs))
			for _, id := range rankedIDs {
				if chunk, ok := chunkByID[id]; ok {
					order = append(order, chunk)
				}
			}
			reranked = true
		}
	}

	if len(order) > opts.Limit {
		order = order[:opts.Limit]
	}

	results := make([]*Result, 0, len(order))
	for _, chunk := range order {
		agg := byID[chunk.ID]
		results = append(results, &Result{
			ChunkID:           chunk.ID,
			Chunk:             chunk,
			Score:             agg.AggregateScore,
			MatchedSubQueries: agg.MatchedSubQueries,
			Provenance:        agg.Contributions,
		})
	}
	return results, reranked, nil
}

func matchesFilters(chunk *store.Chunk, filters map[string]string) bool {
	if len(filters) == 0 {
		return true
	}
	for k, v := range filters {
		if chunk.Metadata[k] != v {
			return false
		}
	}
	return true
}

// Stats summarises the indexed state across backends.
type Stats struct {
	VectorBackend string
	VectorCount   int
	LexicalCount  int
	ChunkCount    int
	EmbedderModel string
	EmbedderDims  int
	EmbedderReady bool
}

// Stats reports counts from every backend.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	vectorCount, err := e.vector.Count(ctx)
	if err != nil {
		return nil, err
	}
	lexicalCount, err := e.lexical.DocCount()
	if err != nil {
		return nil, err
	}
	chunkCount, err := e.chunks.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		VectorBackend: string(e.vector.Kind()),
		VectorCount:   vectorCount,
		LexicalCount:  lexicalCount,
		ChunkCount:    chunkCount,
		EmbedderModel: e.embedder.ModelName(),
		EmbedderDims:  e.embedder.Dimensions(),
		EmbedderReady: e.embedder.Available(ctx),
	}, nil
}

// Close releases every backend owned by the engine.
func (e *Engine) Close() error {
	var firstErr error
	for _, closer := range []interface{ Close() error }{
		e.vector, e.lexical, e.chunks, e.embedder,
	} {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
