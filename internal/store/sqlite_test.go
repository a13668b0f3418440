package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunkStore(t *testing.T) *SQLiteChunkStore {
	t.Helper()
	s, err := NewSQLiteChunkStore(filepath.Join(t.TempDir(), "chunks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteChunkStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	chunk := &Chunk{
		ID:         "doc1#0",
		DocumentID: "doc1",
		Position:   0,
		Text:       "The quick brown fox",
		Metadata:   map[string]string{"source": "notes", "lang": "en"},
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{chunk}))

	got, err := s.GetChunk(ctx, "doc1#0")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, chunk.Text, got.Text)
	assert.Equal(t, chunk.DocumentID, got.DocumentID)
	assert.Equal(t, chunk.Metadata, got.Metadata)
	assert.Equal(t, chunk.CreatedAt.Unix(), got.CreatedAt.Unix())
}

func TestSQLiteChunkStore_GetMissingReturnsNil(t *testing.T) {
	s := newTestChunkStore(t)

	got, err := s.GetChunk(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteChunkStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	require.NoError(t, s.SaveChunks(ctx, []*Chunk{{ID: "a", DocumentID: "d", Text: "old"}}))
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{{ID: "a", DocumentID: "d", Text: "new"}}))

	got, err := s.GetChunk(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Text)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteChunkStore_GetChunksPreservesRequestOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	require.NoError(t, s.SaveChunks(ctx, []*Chunk{
		{ID: "a", DocumentID: "d", Text: "alpha"},
		{ID: "b", DocumentID: "d", Text: "beta"},
		{ID: "c", DocumentID: "d", Text: "gamma"},
	}))

	got, err := s.GetChunks(ctx, []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestSQLiteChunkStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	require.NoError(t, s.SaveChunks(ctx, []*Chunk{
		{ID: "a", DocumentID: "d", Text: "alpha"},
		{ID: "b", DocumentID: "d", Text: "beta"},
	}))
	require.NoError(t, s.DeleteChunks(ctx, []string{"a"}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := s.GetChunk(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteChunkStore_EmptyMetadataRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	require.NoError(t, s.SaveChunks(ctx, []*Chunk{{ID: "bare", DocumentID: "d", Text: "x"}}))

	got, err := s.GetChunk(ctx, "bare")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Metadata)
}
