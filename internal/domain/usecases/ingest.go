// Package usecases contains application business rules. Usecases orchestrate
// entities and depend on port interfaces only; adapters are injected.
package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// IngestUseCase handles loading, chunking, and indexing of documents.
type IngestUseCase struct {
	loader       ports.DocumentLoader
	index        ports.VectorIndex
	chunkSize    int
	chunkOverlap int
}

// NewIngestUseCase creates an IngestUseCase with injected dependencies.
func NewIngestUseCase(loader ports.DocumentLoader, index ports.VectorIndex, chunkSize, chunkOverlap int) *IngestUseCase {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if chunkOverlap < 0 {
		chunkOverlap = 50
	}
	return &IngestUseCase{
		loader:       loader,
		index:        index,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// AddDocuments loads each path, chunks it, and indexes the chunks. Every chunk
// carries `source` and `timestamp` metadata plus whatever the caller supplies.
// Returns the assigned chunk ids in input order.
func (uc *IngestUseCase) AddDocuments(ctx context.Context, paths []string, metadata map[string]any) ([]string, error) {
	var inputs []entities.ChunkInput
	for _, path := range paths {
		doc, err := uc.loader.Load(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		for _, text := range uc.chunkText(doc.Content) {
			meta := entities.CloneMetadata(metadata)
			meta["source"] = doc.Path
			meta["timestamp"] = time.Now().Format(time.RFC3339)
			inputs = append(inputs, entities.ChunkInput{Text: text, Metadata: meta})
		}
	}
	if len(inputs) == 0 {
		return nil, nil
	}
	return uc.index.Add(ctx, inputs)
}

// AddText chunks raw text and indexes it without going through a loader.
func (uc *IngestUseCase) AddText(ctx context.Context, text string, metadata map[string]any) ([]string, error) {
	chunks := uc.chunkText(text)
	if len(chunks) == 0 {
		return nil, nil
	}
	inputs := make([]entities.ChunkInput, len(chunks))
	for i, c := range chunks {
		meta := entities.CloneMetadata(metadata)
		if _, ok := meta["source"]; !ok {
			meta["source"] = "inline"
		}
		meta["timestamp"] = time.Now().Format(time.RFC3339)
		inputs[i] = entities.ChunkInput{Text: c, Metadata: meta}
	}
	return uc.index.Add(ctx, inputs)
}

// DeleteDocuments removes chunks from the index by canonical id.
func (uc *IngestUseCase) DeleteDocuments(ctx context.Context, ids []string) error {
	return uc.index.Delete(ctx, ids)
}

// Count returns the number of indexed chunks.
func (uc *IngestUseCase) Count() int {
	return uc.index.Count()
}

// chunkText splits text into overlapping chunks, breaking at word boundaries
// where possible.
func (uc *IngestUseCase) chunkText(content string) []string {
	content = strings.TrimSpace(content)
	if len(content) == 0 {
		return nil
	}

	var chunks []string
	start := 0

	for start < len(content) {
		end := start + uc.chunkSize
		if end > len(content) {
			end = len(content)
		}

		// Break at the last word boundary inside the window.
		if end < len(content) {
			lastSpace := strings.LastIndex(content[start:end], " ")
			if lastSpace > 0 {
				end = start + lastSpace
			}
		}

		chunk := strings.TrimSpace(content[start:end])
		if len(chunk) > 0 {
			chunks = append(chunks, chunk)
		}

		if end >= len(content) {
			break
		}
		next := end - uc.chunkOverlap
		if next <= start {
			next = end // overlap would stall, advance without it
		}
		start = next
	}

	return chunks
}
