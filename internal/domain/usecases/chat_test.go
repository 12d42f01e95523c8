package usecases

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

type assistantFixture struct {
	assistant *Assistant
	manager   *ConversationManager
	store     *mockConvStore
	llm       *mockLLM
	convID    string
}

func newAssistantFixture(t *testing.T, llm *mockLLM) *assistantFixture {
	t.Helper()
	store := newMockConvStore()
	manager := NewConversationManager(store, 30, true, 1)
	contexts := NewContextManager(llm, 10, FormatMarkdown, false, CompressionSummary, 3)
	index := seededIndex(t, "The capital of France is Paris.")
	assistant := NewAssistant(manager, contexts, NewRetriever(index, 5), llm)

	id, err := manager.CreateConversation("")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return &assistantFixture{assistant: assistant, manager: manager, store: store, llm: llm, convID: id}
}

func TestAssistant_ChatAppendsCompletedTurn(t *testing.T) {
	f := newAssistantFixture(t, &mockLLM{})

	resp, err := f.assistant.Chat(context.Background(), f.convID, "what is the capital of France?", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Answer != "mock answer" {
		t.Errorf("unexpected answer: %q", resp.Answer)
	}
	if len(resp.Sources) != 1 {
		t.Errorf("expected 1 knowledge source, got %d", len(resp.Sources))
	}

	h, _ := f.manager.GetConversation(f.convID)
	if len(h.Messages) != 2 {
		t.Fatalf("expected a complete turn in history, got %d messages", len(h.Messages))
	}
	if h.Messages[1].Role != entities.RoleAssistant {
		t.Errorf("second message should be the assistant reply")
	}
	if len(h.Messages[1].KnowledgeSources) != 1 {
		t.Errorf("assistant message should record its knowledge sources")
	}

	saved := f.store.saved[f.convID]
	if saved == nil || len(saved.Messages) != 2 {
		t.Error("completed turn was not persisted")
	}
}

func TestAssistant_ChatUnknownConversation(t *testing.T) {
	f := newAssistantFixture(t, &mockLLM{})

	_, err := f.assistant.Chat(context.Background(), "conv_missing", "hello", nil)
	if !errors.Is(err, entities.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAssistant_GenerationFailureRollsBackUserMessage(t *testing.T) {
	llm := &mockLLM{generateFn: func(prompt string) (string, error) {
		return "", errors.New("model offline")
	}}
	f := newAssistantFixture(t, llm)

	_, err := f.assistant.Chat(context.Background(), f.convID, "doomed question", nil)
	if !errors.Is(err, entities.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}

	h, _ := f.manager.GetConversation(f.convID)
	if len(h.Messages) != 0 {
		t.Errorf("failed turn left %d messages in history", len(h.Messages))
	}
	if saved := f.store.saved[f.convID]; len(saved.Messages) != 0 {
		t.Errorf("failed turn was persisted: %d messages", len(saved.Messages))
	}
}

func TestAssistant_GenerationFailureAtCapacityKeepsAlignment(t *testing.T) {
	store := newMockConvStore()
	manager := NewConversationManager(store, 2, true, 1)
	llm := &mockLLM{}
	contexts := NewContextManager(llm, 10, FormatMarkdown, false, CompressionSummary, 3)
	assistant := NewAssistant(manager, contexts, NewRetriever(seededIndex(t, "Some knowledge."), 5), llm)

	id, err := manager.CreateConversation("")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	for i := 1; i <= 2; i++ {
		if _, err := assistant.Chat(context.Background(), id, "early question", nil); err != nil {
			t.Fatalf("Chat %d: %v", i, err)
		}
	}

	// The history is at capacity. A failed turn must leave it exactly as it
	// was: even length, user-first, nothing trimmed.
	llm.generateFn = func(prompt string) (string, error) {
		return "", errors.New("model offline")
	}
	if _, err := assistant.Chat(context.Background(), id, "doomed question", nil); !errors.Is(err, entities.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}

	h, _ := manager.GetConversation(id)
	if len(h.Messages) != 4 {
		t.Fatalf("failed turn changed history length: %d messages", len(h.Messages))
	}
	if h.Messages[0].Role != entities.RoleUser {
		t.Errorf("history no longer starts with a user message: %q", h.Messages[0].Role)
	}

	// A later successful turn trims a whole pair and stays aligned.
	llm.generateFn = nil
	if _, err := assistant.Chat(context.Background(), id, "recovered question", nil); err != nil {
		t.Fatalf("Chat after failure: %v", err)
	}
	h, _ = manager.GetConversation(id)
	if len(h.Messages) != 4 || h.Messages[0].Role != entities.RoleUser {
		t.Errorf("trim after recovery broke alignment: %d messages, front role %q",
			len(h.Messages), h.Messages[0].Role)
	}
}

func TestAssistant_ChatUsesConversationContext(t *testing.T) {
	llm := &mockLLM{}
	f := newAssistantFixture(t, llm)

	if _, err := f.assistant.Chat(context.Background(), f.convID, "first question", nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if _, err := f.assistant.Chat(context.Background(), f.convID, "second question", nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	lastPrompt := llm.calls[len(llm.calls)-1]
	if !strings.Contains(lastPrompt, "first question") {
		t.Errorf("second turn's prompt should carry earlier context: %q", lastPrompt)
	}
}

func TestAssistant_StreamChatFinalizesTurn(t *testing.T) {
	f := newAssistantFixture(t, &mockLLM{})

	ch, sources, err := f.assistant.StreamChat(context.Background(), f.convID, "stream me an answer", nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if len(sources) != 1 {
		t.Errorf("expected 1 source, got %d", len(sources))
	}

	var answer strings.Builder
	for token := range ch {
		if token.Error != nil {
			t.Fatalf("stream error: %v", token.Error)
		}
		answer.WriteString(token.Content)
	}
	if answer.String() != "mock answer" {
		t.Errorf("reassembled answer mismatch: %q", answer.String())
	}

	h, _ := f.manager.GetConversation(f.convID)
	if len(h.Messages) != 2 {
		t.Fatalf("stream completion should append the assistant message, got %d messages", len(h.Messages))
	}
	if h.Messages[1].Content != "mock answer" {
		t.Errorf("assistant message holds %q", h.Messages[1].Content)
	}
	if saved := f.store.saved[f.convID]; len(saved.Messages) != 2 {
		t.Error("streamed turn was not persisted")
	}
}

func TestAssistant_SummaryTriggeredAfterInterval(t *testing.T) {
	llm := &mockLLM{generateFn: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Summarize") || strings.Contains(prompt, "Updated summary") {
			return "rolling summary", nil
		}
		return "an answer", nil
	}}
	f := newAssistantFixture(t, llm)

	for i := 0; i < 3; i++ {
		if _, err := f.assistant.Chat(context.Background(), f.convID, "another question", nil); err != nil {
			t.Fatalf("Chat %d: %v", i, err)
		}
	}

	h, _ := f.manager.GetConversation(f.convID)
	if h.Summary != "rolling summary" || h.SummaryTurn != 3 {
		t.Errorf("expected summary after 3 turns, got %q at turn %d", h.Summary, h.SummaryTurn)
	}
}
