package store

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	sherr "github.com/shelfmark/shelfmark/internal/errors"
)

// QdrantConfig configures the remote Qdrant vector backend.
type QdrantConfig struct {
	// Addr is "host:port" for the gRPC endpoint (default port 6334).
	Addr string

	// Collection is the Qdrant collection name.
	Collection string

	// Dimensions is the fixed embedding length. Required.
	Dimensions int

	// Metric is the native metric: "cosine" (default) or "dot".
	Metric Metric
}

// QdrantStore implements VectorStore against a remote Qdrant instance over
// gRPC. Qdrant supports native payload filtering, so the engine delegates
// metadata filters instead of post-filtering.
//
// Qdrant point IDs must be UUIDs, while chunk IDs are arbitrary strings.
// Each chunk ID maps to a deterministic UUIDv5 point ID, and the original
// chunk ID travels in the payload so results round-trip losslessly.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	config     QdrantConfig
}

const qdrantChunkIDKey = "chunk_id"

// NewQdrantStore connects to Qdrant and ensures the collection exists.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, sherr.ConfigError("qdrant store requires positive dimensions", nil)
	}
	if cfg.Collection == "" {
		return nil, sherr.ConfigError("qdrant store requires a collection name", nil)
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.Metric != MetricCosine && cfg.Metric != MetricDot {
		return nil, sherr.ConfigError(
			fmt.Sprintf("qdrant store supports cosine or dot metrics, got %q", cfg.Metric), nil)
	}

	host, portStr, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		host = cfg.Addr
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, sherr.ConfigError(fmt.Sprintf("invalid port in qdrant addr %q", cfg.Addr), err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
		GrpcOptions: []grpc.DialOption{
			// Batched point payloads can exceed the default 4 MiB cap.
			grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(64 * 1024 * 1024)),
		},
	})
	if err != nil {
		return nil, sherr.BackendUnavailable(string(KindQdrant), err)
	}

	s := &QdrantStore{client: client, collection: cfg.Collection, config: cfg}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return sherr.BackendUnavailable(string(KindQdrant), err)
	}
	if exists {
		return nil
	}

	distance := qdrant.Distance_Cosine
	if s.config.Metric == MetricDot {
		distance = qdrant.Distance_Dot
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.config.Dimensions),
			Distance: distance,
		}),
	})
	if err != nil {
		return sherr.BackendUnavailable(string(KindQdrant), fmt.Errorf("create collection: %w", err))
	}
	return nil
}

// Kind identifies the adapter for provenance.
func (s *QdrantStore) Kind() AdapterKind { return KindQdrant }

// Capability reports the configured metric and native filter support.
func (s *QdrantStore) Capability() BackendCapability {
	return BackendCapability{Metric: s.config.Metric, SupportsFilter: true}
}

// pointID derives the deterministic UUID for a chunk ID.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

// Add upserts vectors keyed by chunk ID.
func (s *QdrantStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return sherr.ValidationError(
			fmt.Sprintf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors)), nil)
	}

	points := make([]*qdrant.PointStruct, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != s.config.Dimensions {
			return sherr.DimensionMismatch(s.config.Dimensions, len(vectors[i]))
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(id)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: map[string]*qdrant.Value{
				qdrantChunkIDKey: qdrant.NewValueString(id),
			},
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return sherr.BackendUnavailable(string(KindQdrant), fmt.Errorf("upsert points: %w", err))
	}
	return nil
}

// AddWithMetadata upserts vectors along with payload fields used for native
// filtering at query time.
func (s *QdrantStore) AddWithMetadata(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) != s.config.Dimensions {
			return sherr.DimensionMismatch(s.config.Dimensions, len(c.Embedding))
		}
		payload := map[string]*qdrant.Value{
			qdrantChunkIDKey: qdrant.NewValueString(c.ID),
		}
		for k, v := range c.Metadata {
			payload[k] = qdrant.NewValueString(v)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(c.ID)),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: payload,
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return sherr.BackendUnavailable(string(KindQdrant), fmt.Errorf("upsert points: %w", err))
	}
	return nil
}

// Search queries the collection for the k nearest neighbours, applying
// metadata filters natively as payload match conditions.
func (s *QdrantStore) Search(ctx context.Context, query []float32, k int, filters map[string]string) (RankedList, error) {
	if len(query) != s.config.Dimensions {
		return nil, sherr.DimensionMismatch(s.config.Dimensions, len(query))
	}

	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	if len(filters) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filters))
		for key, value := range filters {
			conditions = append(conditions, qdrant.NewMatch(key, value))
		}
		req.Filter = &qdrant.Filter{Must: conditions}
	}

	response, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, sherr.BackendUnavailable(string(KindQdrant), fmt.Errorf("query: %w", err))
	}

	results := make(RankedList, 0, len(response))
	for _, point := range response {
		chunkID := ""
		if payload := point.Payload; payload != nil {
			if v, ok := payload[qdrantChunkIDKey]; ok {
				chunkID = v.GetStringValue()
			}
		}
		if chunkID == "" {
			// Point written outside this adapter; fall back to the UUID.
			chunkID = point.Id.GetUuid()
		}

		results = append(results, &ScoredResult{
			ChunkID:  chunkID,
			RawScore: float64(point.Score),
			Rank:     len(results) + 1,
			Source:   Source{Kind: KindQdrant, SubQuery: -1},
		})
	}

	return NormaliseList(results, s.config.Metric), nil
}

// Delete removes vectors by chunk ID.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(pointID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return sherr.BackendUnavailable(string(KindQdrant), fmt.Errorf("delete points: %w", err))
	}
	return nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, sherr.BackendUnavailable(string(KindQdrant), fmt.Errorf("count points: %w", err))
	}
	return int(count), nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Verify interface implementation
var _ VectorStore = (*QdrantStore)(nil)
