package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

func historyWithTurns(turns int) *entities.ConversationHistory {
	h := entities.NewConversationHistory("conv_test", 30)
	for i := 1; i <= turns; i++ {
		h.AddMessage(entities.ConversationMessage{Role: entities.RoleUser, Content: fmt.Sprintf("question %d", i), Timestamp: time.Now()})
		h.AddMessage(entities.ConversationMessage{Role: entities.RoleAssistant, Content: fmt.Sprintf("answer %d", i), Timestamp: time.Now()})
	}
	return h
}

func newTestContextManager(llm *mockLLM) *ContextManager {
	return NewContextManager(llm, 10, FormatMarkdown, false, CompressionSummary, 3)
}

func TestContextManager_ShouldCreateSummaryNeverMidTurn(t *testing.T) {
	cm := newTestContextManager(&mockLLM{})

	h := historyWithTurns(5)
	h.AddMessage(entities.ConversationMessage{Role: entities.RoleUser, Content: "unanswered", Timestamp: time.Now()})

	if cm.ShouldCreateSummary(h) {
		t.Error("summary must not trigger while the last message is a user message")
	}
}

func TestContextManager_SummaryIntervalScenario(t *testing.T) {
	llm := &mockLLM{generateFn: func(prompt string) (string, error) {
		return "summary text", nil
	}}
	cm := newTestContextManager(llm)
	ctx := context.Background()

	h := historyWithTurns(2)
	if cm.ShouldCreateSummary(h) {
		t.Error("2 turns < interval 3, should not trigger")
	}

	h = historyWithTurns(3)
	if !cm.ShouldCreateSummary(h) {
		t.Fatal("3 completed turns should trigger the first summary")
	}
	cm.UpdateSummary(ctx, h)
	if h.Summary == "" || h.SummaryTurn != 3 {
		t.Fatalf("expected summary at turn 3, got %q at %d", h.Summary, h.SummaryTurn)
	}

	// Turns 4 and 5: only 2 unsummarized turns, no trigger.
	for i := 4; i <= 5; i++ {
		h.AddMessage(entities.ConversationMessage{Role: entities.RoleUser, Content: fmt.Sprintf("question %d", i), Timestamp: time.Now()})
		h.AddMessage(entities.ConversationMessage{Role: entities.RoleAssistant, Content: fmt.Sprintf("answer %d", i), Timestamp: time.Now()})
	}
	if cm.ShouldCreateSummary(h) {
		t.Error("only 2 turns since summary, should not trigger")
	}

	h.AddMessage(entities.ConversationMessage{Role: entities.RoleUser, Content: "question 6", Timestamp: time.Now()})
	h.AddMessage(entities.ConversationMessage{Role: entities.RoleAssistant, Content: "answer 6", Timestamp: time.Now()})
	if !cm.ShouldCreateSummary(h) {
		t.Fatal("turn 6 completes another interval, should trigger")
	}
	cm.UpdateSummary(ctx, h)
	if h.SummaryTurn != 6 {
		t.Errorf("expected summaryTurn 6, got %d", h.SummaryTurn)
	}
}

func TestContextManager_IncrementalSummaryMergesPrior(t *testing.T) {
	llm := &mockLLM{generateFn: func(prompt string) (string, error) {
		return "merged summary", nil
	}}
	cm := newTestContextManager(llm)

	h := historyWithTurns(6)
	h.UpdateSummary("the user asked three questions", 3)

	summary := cm.CreateIncrementalSummary(context.Background(), h)
	if summary != "merged summary" {
		t.Fatalf("unexpected summary: %q", summary)
	}

	prompt := llm.calls[len(llm.calls)-1]
	if !strings.Contains(prompt, "the user asked three questions") {
		t.Error("prior summary missing from merge prompt")
	}
	if !strings.Contains(prompt, "question 4") || strings.Contains(prompt, "question 3") {
		t.Error("merge prompt should contain only messages after summaryTurn")
	}
}

func TestContextManager_SummaryFailureDegrades(t *testing.T) {
	llm := &mockLLM{generateFn: func(prompt string) (string, error) {
		return "", errors.New("model offline")
	}}
	cm := newTestContextManager(llm)

	h := historyWithTurns(3)
	cm.UpdateSummary(context.Background(), h)
	if h.Summary != "" || h.SummaryTurn != 0 {
		t.Errorf("failed generation must not commit a summary, got %q at %d", h.Summary, h.SummaryTurn)
	}
}

func TestContextManager_BuildContextWithSummary(t *testing.T) {
	cm := newTestContextManager(&mockLLM{})

	h := historyWithTurns(5)
	h.UpdateSummary("earlier discussion recap", 3)

	out := cm.BuildContext(h, 0)
	if !strings.Contains(out, "earlier discussion recap") {
		t.Error("summary missing from context")
	}
	if !strings.Contains(out, "question 4") {
		t.Error("post-summary messages missing from context")
	}
	if strings.Contains(out, "question 2") {
		t.Error("summarized messages should not appear verbatim")
	}
}

func TestContextManager_BuildContextWithoutSummary(t *testing.T) {
	cm := newTestContextManager(&mockLLM{})

	h := historyWithTurns(5)
	out := cm.BuildContext(h, 2)
	if strings.Contains(out, "question 3") {
		t.Error("context should hold only the last 2 turns")
	}
	if !strings.Contains(out, "User: question 4") || !strings.Contains(out, "Assistant: answer 5") {
		t.Errorf("expected Role: content rendering, got %q", out)
	}
}

func TestContextManager_BuildContextNeverSummarizes(t *testing.T) {
	llm := &mockLLM{}
	cm := newTestContextManager(llm)

	h := historyWithTurns(6)
	cm.BuildContext(h, 0)
	if len(llm.calls) != 0 {
		t.Error("BuildContext must never invoke generation")
	}
	if h.Summary != "" {
		t.Error("BuildContext must not commit summaries")
	}
}

func TestContextManager_PlainFormatSeparator(t *testing.T) {
	cm := NewContextManager(&mockLLM{}, 10, FormatPlain, false, CompressionSummary, 3)

	out := cm.BuildContext(historyWithTurns(2), 0)
	if strings.Contains(out, "\n\n") {
		t.Errorf("plain format should use single newlines, got %q", out)
	}
}

func TestContextManager_TruncateModeNeverSummarizes(t *testing.T) {
	cm := NewContextManager(&mockLLM{}, 10, FormatMarkdown, false, CompressionTruncate, 3)

	if cm.ShouldCreateSummary(historyWithTurns(10)) {
		t.Error("truncate mode must never trigger summaries")
	}
}
