package usecases

import (
	"context"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// Retriever shapes similarity search over the vector index: it applies the
// configured default top-k and passes metadata filters through unchanged.
type Retriever struct {
	index       ports.VectorIndex
	defaultTopK int
}

// NewRetriever creates a Retriever with the given default result count.
func NewRetriever(index ports.VectorIndex, defaultTopK int) *Retriever {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Retriever{index: index, defaultTopK: defaultTopK}
}

// Retrieve returns the topK most similar chunks for the query. topK <= 0 uses
// the configured default; filter narrows results by exact metadata match.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, filter map[string]any) ([]entities.ScoredChunk, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}
	return r.index.Search(ctx, query, topK, filter)
}
