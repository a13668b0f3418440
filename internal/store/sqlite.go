package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	sherr "github.com/shelfmark/shelfmark/internal/errors"
)

// SQLiteChunkStore persists chunk text and metadata in SQLite using the pure
// Go driver, so the binary stays CGO-free. Embeddings are not stored here;
// they live in the vector backend.
type SQLiteChunkStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	position    INTEGER NOT NULL,
	text        TEXT NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
`

// NewSQLiteChunkStore opens or creates the chunk database at path.
// ":memory:" creates an in-memory database for tests.
func NewSQLiteChunkStore(path string) (*SQLiteChunkStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, sherr.Wrap(sherr.ErrCodeStoreFailed, fmt.Errorf("create directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, sherr.Wrap(sherr.ErrCodeStoreFailed, fmt.Errorf("open database: %w", err))
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, sherr.Wrap(sherr.ErrCodeStoreFailed, fmt.Errorf("create schema: %w", err))
	}

	return &SQLiteChunkStore{db: db}, nil
}

// SaveChunks upserts chunks in a single transaction.
func (s *SQLiteChunkStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sherr.Wrap(sherr.ErrCodeStoreFailed, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, position, text, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			position    = excluded.position,
			text        = excluded.text,
			metadata    = excluded.metadata`)
	if err != nil {
		return sherr.Wrap(sherr.ErrCodeStoreFailed, fmt.Errorf("prepare upsert: %w", err))
	}
	defer stmt.Close()

	for _, c := range chunks {
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return sherr.Wrap(sherr.ErrCodeStoreFailed,
				fmt.Errorf("marshal metadata for chunk %s: %w", c.ID, err))
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.Position, c.Text, string(metadata), createdAt.Unix()); err != nil {
			return sherr.Wrap(sherr.ErrCodeStoreFailed,
				fmt.Errorf("upsert chunk %s: %w", c.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return sherr.Wrap(sherr.ErrCodeStoreFailed, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// GetChunk returns a single chunk, or nil if absent.
func (s *SQLiteChunkStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, position, text, metadata, created_at
		FROM chunks WHERE id = ?`, id)

	chunk, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sherr.Wrap(sherr.ErrCodeStoreFailed, fmt.Errorf("get chunk %s: %w", id, err))
	}
	return chunk, nil
}

// GetChunks returns chunks for the given IDs, preserving the requested
// order. Missing IDs are skipped rather than producing holes.
func (s *SQLiteChunkStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, document_id, position, text, metadata, created_at
		FROM chunks WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, sherr.Wrap(sherr.ErrCodeStoreFailed, fmt.Errorf("get chunks: %w", err))
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, sherr.Wrap(sherr.ErrCodeStoreFailed, fmt.Errorf("scan chunk: %w", err))
		}
		byID[chunk.ID] = chunk
	}
	if err := rows.Err(); err != nil {
		return nil, sherr.Wrap(sherr.ErrCodeStoreFailed, err)
	}

	ordered := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			ordered = append(ordered, chunk)
		}
	}
	return ordered, nil
}

// DeleteChunks removes chunks by ID.
func (s *SQLiteChunkStore) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM chunks WHERE id IN (%s)", placeholders), args...)
	if err != nil {
		return sherr.Wrap(sherr.ErrCodeStoreFailed, fmt.Errorf("delete chunks: %w", err))
	}
	return nil
}

// Count returns the number of stored chunks.
func (s *SQLiteChunkStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count)
	if err != nil {
		return 0, sherr.Wrap(sherr.ErrCodeStoreFailed, fmt.Errorf("count chunks: %w", err))
	}
	return count, nil
}

// Close closes the database handle.
func (s *SQLiteChunkStore) Close() error {
	return s.db.Close()
}

// Verify interface implementation
var _ ChunkStore = (*SQLiteChunkStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var (
		chunk     Chunk
		metadata  string
		createdAt int64
	)
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Position,
		&chunk.Text, &metadata, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadata), &chunk.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	chunk.CreatedAt = time.Unix(createdAt, 0)
	return &chunk, nil
}
