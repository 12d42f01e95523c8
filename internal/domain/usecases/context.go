package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// Compression methods and rendering formats accepted by ContextManager.
const (
	CompressionSummary  = "summary"
	CompressionTruncate = "truncate"

	FormatMarkdown = "markdown"
	FormatPlain    = "plain"
)

// ContextManager decides when to compress conversation history into a rolling
// summary and renders the bounded context string for generation calls.
// Reading context and triggering summarization are separate operations:
// BuildContext never summarizes.
type ContextManager struct {
	llm               ports.LLMService
	maxTurns          int
	format            string
	includeTimestamps bool
	compression       string
	summaryInterval   int
}

// NewContextManager creates a ContextManager.
func NewContextManager(llm ports.LLMService, maxTurns int, format string, includeTimestamps bool, compression string, summaryInterval int) *ContextManager {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	if format == "" {
		format = FormatMarkdown
	}
	if compression == "" {
		compression = CompressionSummary
	}
	if summaryInterval <= 0 {
		summaryInterval = 3
	}
	return &ContextManager{
		llm:               llm,
		maxTurns:          maxTurns,
		format:            format,
		includeTimestamps: includeTimestamps,
		compression:       compression,
		summaryInterval:   summaryInterval,
	}
}

// ShouldCreateSummary reports whether the history is due for a summary
// update. True only when compression is enabled, the log ends on a completed
// turn, and a full interval of unsummarized turns has accumulated.
func (cm *ContextManager) ShouldCreateSummary(history *entities.ConversationHistory) bool {
	if cm.compression != CompressionSummary {
		return false
	}
	if history == nil || !history.LastTurnComplete() {
		return false
	}
	turns := history.Turns()
	if turns < cm.summaryInterval {
		return false
	}
	if history.Summary == "" {
		return true
	}
	return turns-history.SummaryTurn >= cm.summaryInterval
}

// CreateIncrementalSummary generates a new rolling summary. With a prior
// summary it asks the model to merge it with the messages appended since;
// otherwise it summarizes the accumulated turns. Returns "" on generation
// failure so callers can treat it as "no update".
func (cm *ContextManager) CreateIncrementalSummary(ctx context.Context, history *entities.ConversationHistory) string {
	recent := cm.renderMessages(history.MessagesSinceSummary())

	var prompt string
	if history.Summary != "" {
		prompt = fmt.Sprintf(
			"Below is a summary of an ongoing conversation, followed by the messages exchanged since.\n"+
				"Produce an updated summary. Preserve all key facts from the existing summary and add the new ones.\n\n"+
				"Existing summary:\n%s\n\nNew messages:\n%s\n\nUpdated summary:",
			history.Summary, recent)
	} else {
		prompt = fmt.Sprintf(
			"Summarize the following conversation concisely, keeping all key facts, names, and decisions.\n\n"+
				"%s\n\nSummary:",
			recent)
	}

	summary, err := cm.llm.Generate(ctx, prompt)
	if err != nil {
		slog.Warn("context: summary generation failed, keeping previous summary", "err", err)
		return ""
	}
	return strings.TrimSpace(summary)
}

// UpdateSummary re-checks the trigger and, if still due, generates and
// commits a new summary onto the history. A no-op when the condition no
// longer holds or generation fails.
func (cm *ContextManager) UpdateSummary(ctx context.Context, history *entities.ConversationHistory) {
	if !cm.ShouldCreateSummary(history) {
		return
	}
	summary := cm.CreateIncrementalSummary(ctx, history)
	if summary == "" {
		return
	}
	history.UpdateSummary(summary, history.Turns())
}

// BuildContext renders the bounded context string: the summary followed by
// the messages after it, or the last maxTurns turns verbatim when no summary
// exists. Never triggers summarization.
func (cm *ContextManager) BuildContext(history *entities.ConversationHistory, maxTurns int) string {
	if history == nil || len(history.Messages) == 0 {
		return ""
	}
	if maxTurns <= 0 {
		maxTurns = cm.maxTurns
	}

	if history.Summary != "" {
		parts := []string{"Summary of earlier conversation:\n" + history.Summary}
		if recent := cm.renderMessages(history.MessagesSinceSummary()); recent != "" {
			parts = append(parts, recent)
		}
		return strings.Join(parts, cm.separator())
	}
	return cm.renderMessages(history.RecentMessages(maxTurns))
}

// renderMessages renders messages as "Role: content" lines in the configured
// format.
func (cm *ContextManager) renderMessages(messages []entities.ConversationMessage) string {
	if len(messages) == 0 {
		return ""
	}
	lines := make([]string, len(messages))
	for i, msg := range messages {
		role := msg.Role
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		if cm.includeTimestamps {
			lines[i] = fmt.Sprintf("[%s] %s: %s", msg.Timestamp.Format("15:04:05"), role, msg.Content)
		} else {
			lines[i] = fmt.Sprintf("%s: %s", role, msg.Content)
		}
	}
	return strings.Join(lines, cm.separator())
}

func (cm *ContextManager) separator() string {
	if cm.format == FormatPlain {
		return "\n"
	}
	return "\n\n"
}
