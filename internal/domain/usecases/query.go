package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// QueryUseCase answers one-shot questions against the knowledge base, with no
// conversation state involved.
type QueryUseCase struct {
	retriever *Retriever
	llm       ports.LLMService
}

// NewQueryUseCase creates a QueryUseCase with injected dependencies.
func NewQueryUseCase(retriever *Retriever, llm ports.LLMService) *QueryUseCase {
	return &QueryUseCase{retriever: retriever, llm: llm}
}

// Query retrieves relevant chunks and generates an answer grounded on them.
func (uc *QueryUseCase) Query(ctx context.Context, query string, filter map[string]any) (*entities.ChatResponse, error) {
	sources, err := uc.retriever.Retrieve(ctx, query, 0, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieving knowledge: %w", err)
	}

	prompt := buildKnowledgePrompt(query, "", sources)
	answer, err := uc.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	return &entities.ChatResponse{Answer: answer, Sources: sources}, nil
}

// StreamQuery is Query with a streaming response. The returned sources are
// available immediately; tokens arrive on the channel.
func (uc *QueryUseCase) StreamQuery(ctx context.Context, query string, filter map[string]any) (<-chan ports.StreamToken, []entities.ScoredChunk, error) {
	sources, err := uc.retriever.Retrieve(ctx, query, 0, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieving knowledge: %w", err)
	}

	prompt := buildKnowledgePrompt(query, "", sources)
	ch, err := uc.llm.GenerateStream(ctx, prompt)
	if err != nil {
		return nil, nil, fmt.Errorf("generating answer: %w", err)
	}
	return ch, sources, nil
}

// Search retrieves relevant chunks without generation.
func (uc *QueryUseCase) Search(ctx context.Context, query string, topK int, filter map[string]any) ([]entities.ScoredChunk, error) {
	return uc.retriever.Retrieve(ctx, query, topK, filter)
}

// buildKnowledgePrompt assembles the generation prompt from conversation
// context (may be empty), retrieved knowledge, and the question.
func buildKnowledgePrompt(query, conversationContext string, sources []entities.ScoredChunk) string {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant. Answer the question using the provided knowledge.\n")
	sb.WriteString("If the knowledge does not contain the answer, say so.\n\n")

	if conversationContext != "" {
		sb.WriteString("Conversation so far:\n")
		sb.WriteString(conversationContext)
		sb.WriteString("\n\n")
	}

	if len(sources) > 0 {
		sb.WriteString("Knowledge:\n")
		for _, s := range sources {
			source, _ := s.Chunk.Metadata["source"].(string)
			if source == "" {
				source = s.Chunk.ID
			}
			fmt.Fprintf(&sb, "[Source: %s]\n%s\n\n", source, s.Chunk.Text)
		}
	}

	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}
