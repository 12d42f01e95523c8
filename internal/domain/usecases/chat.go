package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// Assistant orchestrates a conversational turn: append the user message,
// build bounded context, retrieve knowledge, generate, append the assistant
// reply, re-check summarization, persist.
//
// A failed generation rolls the in-memory user message back, so a persisted
// history never ends on an unanswered user message.
type Assistant struct {
	conversations *ConversationManager
	contexts      *ContextManager
	retriever     *Retriever
	llm           ports.LLMService
}

// NewAssistant creates an Assistant with injected dependencies.
func NewAssistant(conversations *ConversationManager, contexts *ContextManager, retriever *Retriever, llm ports.LLMService) *Assistant {
	return &Assistant{
		conversations: conversations,
		contexts:      contexts,
		retriever:     retriever,
		llm:           llm,
	}
}

// Chat runs one blocking conversational turn.
func (a *Assistant) Chat(ctx context.Context, conversationID, message string, filter map[string]any) (*entities.ChatResponse, error) {
	history, prompt, sources, err := a.beginTurn(ctx, conversationID, message, filter)
	if err != nil {
		return nil, err
	}

	answer, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		a.rollbackUserMessage(history)
		return nil, fmt.Errorf("%w: %v", entities.ErrGeneration, err)
	}

	if err := a.completeTurn(ctx, history, answer, sources); err != nil {
		return nil, err
	}
	return &entities.ChatResponse{Answer: answer, Sources: sources}, nil
}

// StreamChat runs one conversational turn with a streamed reply. Tokens are
// forwarded on the returned channel; the turn is finalized (assistant message
// appended, summary re-checked, history persisted) once the stream completes.
// A stream error rolls the user message back, same as the blocking path.
func (a *Assistant) StreamChat(ctx context.Context, conversationID, message string, filter map[string]any) (<-chan ports.StreamToken, []entities.ScoredChunk, error) {
	history, prompt, sources, err := a.beginTurn(ctx, conversationID, message, filter)
	if err != nil {
		return nil, nil, err
	}

	upstream, err := a.llm.GenerateStream(ctx, prompt)
	if err != nil {
		a.rollbackUserMessage(history)
		return nil, nil, fmt.Errorf("%w: %v", entities.ErrGeneration, err)
	}

	out := make(chan ports.StreamToken, 100)
	go func() {
		defer close(out)
		var answer []byte
		for token := range upstream {
			if token.Error != nil {
				a.rollbackUserMessage(history)
				out <- token
				return
			}
			answer = append(answer, token.Content...)
			out <- token
		}
		if err := a.completeTurn(ctx, history, string(answer), sources); err != nil {
			out <- ports.StreamToken{Done: true, Error: err}
		}
	}()
	return out, sources, nil
}

// beginTurn appends the user message in memory, builds the generation prompt,
// and retrieves knowledge. The user message is not persisted here: persistence
// happens only on completed turns.
func (a *Assistant) beginTurn(ctx context.Context, conversationID, message string, filter map[string]any) (*entities.ConversationHistory, string, []entities.ScoredChunk, error) {
	history, err := a.conversations.GetConversation(conversationID)
	if err != nil {
		return nil, "", nil, err
	}
	if history == nil {
		return nil, "", nil, fmt.Errorf("%w: conversation %s", entities.ErrNotFound, conversationID)
	}

	conversationContext := a.contexts.BuildContext(history, 0)

	sources, err := a.retriever.Retrieve(ctx, message, 0, filter)
	if err != nil {
		return nil, "", nil, fmt.Errorf("retrieving knowledge: %w", err)
	}

	history.AddMessage(entities.ConversationMessage{
		Role:      entities.RoleUser,
		Content:   message,
		Timestamp: time.Now(),
	})

	prompt := buildKnowledgePrompt(message, conversationContext, sources)
	return history, prompt, sources, nil
}

// completeTurn appends the assistant reply, re-checks the summarization
// trigger, and persists the now-complete turn.
func (a *Assistant) completeTurn(ctx context.Context, history *entities.ConversationHistory, answer string, sources []entities.ScoredChunk) error {
	ids := make([]string, len(sources))
	for i, s := range sources {
		ids[i] = s.Chunk.ID
	}

	history.AddMessage(entities.ConversationMessage{
		Role:             entities.RoleAssistant,
		Content:          answer,
		Timestamp:        time.Now(),
		KnowledgeSources: ids,
	})

	a.contexts.UpdateSummary(ctx, history)

	if err := a.conversations.persistCompletedTurn(history); err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

// rollbackUserMessage removes the trailing unanswered user message appended
// by beginTurn.
func (a *Assistant) rollbackUserMessage(history *entities.ConversationHistory) {
	if n := len(history.Messages); n > 0 && history.Messages[n-1].Role == entities.RoleUser {
		history.Messages = history.Messages[:n-1]
	}
}
