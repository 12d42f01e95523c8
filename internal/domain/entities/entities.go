// Package entities contains core business entities.
// These are pure domain objects with no knowledge of storage, transports,
// or model providers.
package entities

import "time"

// ScoreMetadataKey is the reserved metadata key under which Search results
// carry their similarity score.
const ScoreMetadataKey = "similarity_score"

// IDMetadataKey is the reserved metadata key under which a stored chunk
// carries its canonical id. Caller-supplied metadata must not use it.
const IDMetadataKey = "_id"

// Document represents a source document (TXT, MD, HTML).
type Document struct {
	ID        string
	Name      string
	Path      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChunkInput is the caller-facing unit of ingestion: a piece of text plus
// free-form metadata. Embedding and id assignment happen inside the index.
type ChunkInput struct {
	Text     string
	Metadata map[string]any
}

// Chunk is a stored unit of text with its embedding vector. Chunks are
// immutable once stored; metadata updates replace the chunk.
type Chunk struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]any
}

// ScoredChunk is a search hit: a chunk plus its similarity score under the
// index's configured metric. The score is also mirrored into the chunk's
// metadata under ScoreMetadataKey.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// ChatResponse is an answer together with the knowledge chunks that
// grounded it.
type ChatResponse struct {
	Answer  string
	Sources []ScoredChunk
}

// CloneMetadata returns a shallow copy of m, never nil.
func CloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
