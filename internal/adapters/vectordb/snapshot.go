// Package vectordb provides vector index adapters implementing
// ports.VectorIndex. The snapshot store keeps the corpus in memory and
// mirrors it 1:1 to three co-located file artifacts; the sqlite store keeps
// it in a single database file.
package vectordb

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// SnapshotStore implements ports.VectorIndex with file-based persistence.
// Each collection is three order-aligned artifacts in one directory:
//
//	<collection>_vectors.bin    vector blob (uint32 count, uint32 dim, float32 data)
//	<collection>_metadata.json  one JSON object per chunk
//	<collection>_documents.json one text string per chunk
//
// Every mutation rewrites all three files in full before returning; there is
// no write-ahead log. On load, a missing or length-mismatched artifact set is
// treated as corruption and the collection restarts empty with a warning.
// The store assumes a single writer process per collection.
type SnapshotStore struct {
	mu       sync.RWMutex
	embedder ports.EmbeddingService
	dir      string
	name     string
	metric   Metric

	chunks  []entities.Chunk
	nextSeq uint64
}

// NewSnapshotStore creates a snapshot-backed vector index for the named
// collection, loading any existing artifacts from dir.
func NewSnapshotStore(embedder ports.EmbeddingService, dir, collection string, metric Metric) (*SnapshotStore, error) {
	if collection == "" {
		collection = "knowledge_base"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating storage directory: %v", entities.ErrPersistence, err)
	}

	s := &SnapshotStore{
		embedder: embedder,
		dir:      dir,
		name:     collection,
		metric:   metric,
		nextSeq:  1,
	}
	s.load()

	slog.Info("vectordb: snapshot store ready",
		"collection", collection, "dir", dir, "chunks", len(s.chunks))
	return s, nil
}

func (s *SnapshotStore) vectorsPath() string {
	return filepath.Join(s.dir, s.name+"_vectors.bin")
}

func (s *SnapshotStore) metadataPath() string {
	return filepath.Join(s.dir, s.name+"_metadata.json")
}

func (s *SnapshotStore) documentsPath() string {
	return filepath.Join(s.dir, s.name+"_documents.json")
}

// load reconciles the in-memory arrays with the persisted artifacts. Any
// inconsistency falls back to an empty collection; load never fails hard.
func (s *SnapshotStore) load() {
	vecData, errV := os.ReadFile(s.vectorsPath())
	metaData, errM := os.ReadFile(s.metadataPath())
	docData, errD := os.ReadFile(s.documentsPath())

	if os.IsNotExist(errV) && os.IsNotExist(errM) && os.IsNotExist(errD) {
		return // fresh collection
	}
	if errV != nil || errM != nil || errD != nil {
		slog.Warn("vectordb: incomplete snapshot, reinitializing empty collection",
			"collection", s.name)
		return
	}

	vectors, err := decodeVectors(vecData)
	if err != nil {
		slog.Warn("vectordb: corrupt vector blob, reinitializing empty collection",
			"collection", s.name, "err", err)
		return
	}
	var metadata []map[string]any
	if err := json.Unmarshal(metaData, &metadata); err != nil {
		slog.Warn("vectordb: corrupt metadata file, reinitializing empty collection",
			"collection", s.name, "err", err)
		return
	}
	var documents []string
	if err := json.Unmarshal(docData, &documents); err != nil {
		slog.Warn("vectordb: corrupt documents file, reinitializing empty collection",
			"collection", s.name, "err", err)
		return
	}
	if len(vectors) != len(metadata) || len(vectors) != len(documents) {
		slog.Warn("vectordb: snapshot length mismatch, reinitializing empty collection",
			"collection", s.name,
			"vectors", len(vectors), "metadata", len(metadata), "documents", len(documents))
		return
	}

	chunks := make([]entities.Chunk, len(vectors))
	for i := range vectors {
		meta := metadata[i]
		if meta == nil {
			meta = map[string]any{}
		}
		id, _ := meta[entities.IDMetadataKey].(string)
		chunks[i] = entities.Chunk{
			ID:       id,
			Vector:   vectors[i],
			Text:     documents[i],
			Metadata: meta,
		}
		if seq, ok := parseSeq(id); ok && seq >= s.nextSeq {
			s.nextSeq = seq + 1
		}
	}
	s.chunks = chunks
}

// persist rewrites all three artifacts. Callers hold the write lock.
func (s *SnapshotStore) persist() error {
	metadata := make([]map[string]any, len(s.chunks))
	documents := make([]string, len(s.chunks))
	for i, c := range s.chunks {
		metadata[i] = c.Metadata
		documents[i] = c.Text
	}

	if err := os.WriteFile(s.vectorsPath(), encodeVectors(s.chunks), 0o644); err != nil {
		return fmt.Errorf("%w: writing vectors: %v", entities.ErrPersistence, err)
	}
	metaJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding metadata: %v", entities.ErrPersistence, err)
	}
	if err := os.WriteFile(s.metadataPath(), metaJSON, 0o644); err != nil {
		return fmt.Errorf("%w: writing metadata: %v", entities.ErrPersistence, err)
	}
	docJSON, err := json.MarshalIndent(documents, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding documents: %v", entities.ErrPersistence, err)
	}
	if err := os.WriteFile(s.documentsPath(), docJSON, 0o644); err != nil {
		return fmt.Errorf("%w: writing documents: %v", entities.ErrPersistence, err)
	}
	return nil
}

// Add embeds all texts in one batch call, assigns canonical ids, and rewrites
// the snapshot. On embedding failure nothing is committed.
func (s *SnapshotStore) Add(ctx context.Context, inputs []entities.ChunkInput) ([]string, error) {
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

	collectionDim := 0
	if len(s.chunks) > 0 {
		collectionDim = len(s.chunks[0].Vector)
	}
	if err := checkBatchDimensions(vectors, collectionDim); err != nil {
		return nil, err
	}

	ids := make([]string, len(inputs))
	for i, in := range inputs {
		id := s.assignID(in.Text)
		ids[i] = id
		meta := entities.CloneMetadata(in.Metadata)
		meta[entities.IDMetadataKey] = id
		s.chunks = append(s.chunks, entities.Chunk{
			ID:       id,
			Vector:   vectors[i],
			Text:     in.Text,
			Metadata: meta,
		})
	}

	if err := s.persist(); err != nil {
		return nil, err
	}
	slog.Debug("vectordb: added chunks", "collection", s.name, "count", len(ids))
	return ids, nil
}

// Search embeds the query once and linearly scans every chunk passing the
// filter. O(n*d) per query; adequate for the corpus sizes this store targets.
func (s *SnapshotStore) Search(ctx context.Context, query string, topK int, filter map[string]any) ([]entities.ScoredChunk, error) {
	s.mu.RLock()
	empty := len(s.chunks) == 0
	s.mu.RUnlock()
	if empty {
		slog.Debug("vectordb: search on empty collection", "collection", s.name)
		return nil, nil
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrEmbedding, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]entities.ScoredChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		if !matchesFilter(c.Metadata, filter) {
			continue
		}
		results = append(results, entities.ScoredChunk{
			Chunk: c,
			Score: s.metric.Score(queryVec, c.Vector),
		})
	}

	// Stable sort keeps ties in insertion order.
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

// Delete removes chunks by canonical id and rewrites the snapshot. Unknown
// ids are ignored; an empty id list leaves the artifacts untouched.
func (s *SnapshotStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	kept := s.chunks[:0]
	removed := 0
	for _, c := range s.chunks {
		if _, ok := idSet[c.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept

	if removed == 0 {
		return nil
	}
	if err := s.persist(); err != nil {
		return err
	}
	slog.Debug("vectordb: deleted chunks", "collection", s.name, "count", removed)
	return nil
}

// Count returns the number of stored chunks.
func (s *SnapshotStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// assignID produces the canonical chunk id: a monotonic sequence number that
// survives restarts (recovered from persisted ids on load) combined with a
// short content digest. Callers hold the write lock.
func (s *SnapshotStore) assignID(text string) string {
	seq := s.nextSeq
	s.nextSeq++
	digest := sha256.Sum256([]byte(text))
	return fmt.Sprintf("doc_%d_%s", seq, hex.EncodeToString(digest[:4]))
}

// checkBatchDimensions verifies every vector in a batch shares one dimension,
// anchored to the collection dimension when the collection already holds
// chunks. Without this a first mixed-dimension batch would commit and every
// later score against the odd vectors would silently be 0.
func checkBatchDimensions(vectors [][]float32, collectionDim int) error {
	dim := collectionDim
	if dim == 0 && len(vectors) > 0 {
		dim = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector dimension %d does not match collection dimension %d",
				entities.ErrEmbedding, len(v), dim)
		}
	}
	return nil
}

// parseSeq extracts the sequence number from a canonical id.
func parseSeq(id string) (uint64, bool) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 || parts[0] != "doc" {
		return 0, false
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// matchesFilter reports whether metadata satisfies every key of the filter
// (exact-match conjunction). A nil filter matches everything.
func matchesFilter(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// encodeVectors serializes vectors as a little-endian blob:
// uint32 count, uint32 dim, then count*dim float32 values.
func encodeVectors(chunks []entities.Chunk) []byte {
	dim := 0
	if len(chunks) > 0 {
		dim = len(chunks[0].Vector)
	}
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint32(len(chunks)))
	binary.Write(buf, binary.LittleEndian, uint32(dim))
	for _, c := range chunks {
		binary.Write(buf, binary.LittleEndian, c.Vector)
	}
	return buf.Bytes()
}

// decodeVectors parses the vector blob written by encodeVectors.
func decodeVectors(data []byte) ([][]float32, error) {
	buf := bytes.NewReader(data)
	var count, dim uint32
	if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("reading count: %w", err)
	}
	if err := binary.Read(buf, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("reading dim: %w", err)
	}
	if int64(buf.Len()) != int64(count)*int64(dim)*4 {
		return nil, fmt.Errorf("blob holds %d bytes, want %d", buf.Len(), int64(count)*int64(dim)*4)
	}
	vectors := make([][]float32, count)
	for i := range vectors {
		vectors[i] = make([]float32, dim)
		if err := binary.Read(buf, binary.LittleEndian, vectors[i]); err != nil {
			return nil, fmt.Errorf("reading vector %d: %w", i, err)
		}
	}
	return vectors, nil
}

var _ ports.VectorIndex = (*SnapshotStore)(nil)
