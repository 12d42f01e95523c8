package vectordb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// SQLiteStore implements ports.VectorIndex backed by a single SQLite file.
// Scoring is still a brute-force scan; SQLite buys durability and atomic
// writes, not indexed nearest-neighbor search. Like the snapshot store it
// assumes a single writer process per collection.
type SQLiteStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	embedder ports.EmbeddingService
	name     string
	metric   Metric
}

// NewSQLiteStore opens (or creates) the database under dir and prepares the
// chunks table for the named collection.
func NewSQLiteStore(embedder ports.EmbeddingService, dir, collection string, metric Metric) (*SQLiteStore, error) {
	if collection == "" {
		collection = "knowledge_base"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating storage directory: %v", entities.ErrPersistence, err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, "vectors.db"))
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", entities.ErrPersistence, err)
	}

	s := &SQLiteStore{db: db, embedder: embedder, name: collection, metric: metric}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing schema: %v", entities.ErrPersistence, err)
	}

	slog.Info("vectordb: sqlite store ready", "collection", collection, "chunks", s.Count())
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		collection TEXT NOT NULL,
		text TEXT NOT NULL,
		metadata TEXT NOT NULL,
		embedding TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add embeds the texts in one batch call and inserts them in a single
// transaction so partial batches are never committed.
func (s *SQLiteStore) Add(ctx context.Context, inputs []entities.ChunkInput) ([]string, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(inputs))
	for i, in := range inputs {
		texts[i] = in.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrEmbedding, err)
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts",
			entities.ErrEmbedding, len(vectors), len(inputs))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	collectionDim, err := s.collectionDimension(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkBatchDimensions(vectors, collectionDim); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: starting transaction: %v", entities.ErrPersistence, err)
	}
	defer tx.Rollback()

	var nextSeq uint64 = 1
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM chunks WHERE collection = ?`, s.name,
	).Scan(&nextSeq); err != nil {
		return nil, fmt.Errorf("%w: reading sequence: %v", entities.ErrPersistence, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, collection, text, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: preparing statement: %v", entities.ErrPersistence, err)
	}
	defer stmt.Close()

	ids := make([]string, len(inputs))
	for i, in := range inputs {
		digest := sha256.Sum256([]byte(in.Text))
		id := fmt.Sprintf("doc_%d_%s", nextSeq, hex.EncodeToString(digest[:4]))
		nextSeq++
		ids[i] = id

		meta := entities.CloneMetadata(in.Metadata)
		meta[entities.IDMetadataKey] = id
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding metadata: %v", entities.ErrPersistence, err)
		}
		embJSON, err := json.Marshal(vectors[i])
		if err != nil {
			return nil, fmt.Errorf("%w: encoding embedding: %v", entities.ErrPersistence, err)
		}
		if _, err := stmt.ExecContext(ctx, id, s.name, in.Text, metaJSON, embJSON); err != nil {
			return nil, fmt.Errorf("%w: inserting chunk: %v", entities.ErrPersistence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing: %v", entities.ErrPersistence, err)
	}
	return ids, nil
}

// collectionDimension returns the vector dimension of the oldest stored
// chunk, or 0 for an empty collection. Callers hold the lock.
func (s *SQLiteStore) collectionDimension(ctx context.Context) (int, error) {
	var embJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT embedding FROM chunks WHERE collection = ? ORDER BY seq LIMIT 1
	`, s.name).Scan(&embJSON)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: reading collection dimension: %v", entities.ErrPersistence, err)
	}
	var v []float32
	if err := json.Unmarshal(embJSON, &v); err != nil {
		return 0, nil // corrupt row, skipped by Search anyway
	}
	return len(v), nil
}

// Search embeds the query once, loads the collection in insertion order, and
// scores every chunk passing the filter.
func (s *SQLiteStore) Search(ctx context.Context, query string, topK int, filter map[string]any) ([]entities.ScoredChunk, error) {
	if s.Count() == 0 {
		return nil, nil
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrEmbedding, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, metadata, embedding FROM chunks
		WHERE collection = ? ORDER BY seq
	`, s.name)
	if err != nil {
		return nil, fmt.Errorf("%w: querying chunks: %v", entities.ErrPersistence, err)
	}
	defer rows.Close()

	var results []entities.ScoredChunk
	for rows.Next() {
		var c entities.Chunk
		var metaJSON, embJSON []byte
		if err := rows.Scan(&c.ID, &c.Text, &metaJSON, &embJSON); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", entities.ErrPersistence, err)
		}
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			slog.Warn("vectordb: skipping chunk with corrupt metadata", "id", c.ID, "err", err)
			continue
		}
		if err := json.Unmarshal(embJSON, &c.Vector); err != nil {
			slog.Warn("vectordb: skipping chunk with corrupt embedding", "id", c.ID, "err", err)
			continue
		}
		if !matchesFilter(c.Metadata, filter) {
			continue
		}
		results = append(results, entities.ScoredChunk{
			Chunk: c,
			Score: s.metric.Score(queryVec, c.Vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating rows: %v", entities.ErrPersistence, err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		meta := entities.CloneMetadata(results[i].Chunk.Metadata)
		meta[entities.ScoreMetadataKey] = results[i].Score
		results[i].Chunk.Metadata = meta
	}
	return results, nil
}

// Delete removes chunks by canonical id. Unknown ids are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: starting transaction: %v", entities.ErrPersistence, err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunks WHERE collection = ? AND id = ?`, s.name, id); err != nil {
			return fmt.Errorf("%w: deleting chunk: %v", entities.ErrPersistence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing: %v", entities.ErrPersistence, err)
	}
	return nil
}

// Count returns the number of stored chunks in the collection.
func (s *SQLiteStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM chunks WHERE collection = ?`, s.name,
	).Scan(&count); err != nil {
		return 0
	}
	return count
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ ports.VectorIndex = (*SQLiteStore)(nil)
