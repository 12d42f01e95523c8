// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions; adapters implement them.
package ports

import (
	"context"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// EmbeddingService generates vector embeddings for text. All vectors produced
// by one service share a fixed dimensionality.
type EmbeddingService interface {
	// Embed generates a vector embedding for a single query text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one logical call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMService generates text from a language model.
type LLMService interface {
	// Generate produces a complete response for the prompt (blocking).
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream produces a streaming response. The caller drives
	// consumption; once it stops pulling and cancels ctx, no background
	// work continues.
	GenerateStream(ctx context.Context, prompt string) (<-chan StreamToken, error)
}

// StreamToken is a single fragment of a streaming LLM response.
type StreamToken struct {
	Content string
	Done    bool
	Error   error
}

// VectorIndex owns the embedded corpus: it embeds, stores, searches, and
// deletes chunks, persisting every mutation before returning. Implementations
// are internally consistent across calls: no partially written state is
// observable after Add or Delete returns.
type VectorIndex interface {
	// Add embeds the texts in one batch call, assigns fresh canonical ids,
	// appends the chunks, and rewrites the persisted snapshot. Returns the
	// assigned ids in input order. All-or-nothing: on embedding failure
	// nothing is committed.
	Add(ctx context.Context, chunks []entities.ChunkInput) ([]string, error)

	// Search embeds the query once and scores every stored chunk passing the
	// filter (exact-match conjunction over metadata keys). Results are sorted
	// by descending score, ties kept in insertion order, truncated to topK.
	// An empty index yields an empty result, not an error.
	Search(ctx context.Context, query string, topK int, filter map[string]any) ([]entities.ScoredChunk, error)

	// Delete removes chunks by canonical id and rewrites the snapshot.
	// Unknown ids are ignored; an error is returned only on I/O failure.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored chunks.
	Count() int
}

// ConversationStore is durable key-value persistence for conversation
// histories plus a summary index for listing and searching.
type ConversationStore interface {
	// Save writes the full history and rewrites its index entry.
	Save(history *entities.ConversationHistory) error

	// Load reads a history by id. Returns (nil, nil) when no record exists.
	Load(conversationID string) (*entities.ConversationHistory, error)

	// Delete removes the record and its index entry. Idempotent.
	Delete(conversationID string) error

	// List returns the index entries for all stored conversations.
	List() ([]entities.ConversationIndexEntry, error)

	// Search returns up to maxResults entries whose conversation id or title
	// metadata contains the query as a substring (case-insensitive).
	Search(query string, maxResults int) ([]entities.ConversationIndexEntry, error)
}

// DocumentLoader reads and parses documents from disk.
type DocumentLoader interface {
	// Load reads a document from the given path.
	Load(ctx context.Context, path string) (*entities.Document, error)

	// SupportedExtensions returns file extensions this loader handles.
	SupportedExtensions() []string
}

// DocumentParser extracts plain text from a markup or binary format.
type DocumentParser interface {
	// Parse extracts text content from document bytes.
	Parse(ctx context.Context, data []byte, filename string) (string, error)

	// SupportedFormats returns formats this parser handles (e.g. "html").
	SupportedFormats() []string
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)
