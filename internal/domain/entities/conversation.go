package entities

import "time"

// Message roles. A turn is one RoleUser message paired with the RoleAssistant
// reply that follows it.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ConversationMessage is a single message in a conversation. Immutable once
// appended to a history.
type ConversationMessage struct {
	Role             string         `json:"role"`
	Content          string         `json:"content"`
	Timestamp        time.Time      `json:"timestamp"`
	Metadata         map[string]any `json:"metadata"`
	KnowledgeSources []string       `json:"knowledgeSources"`
}

// ConversationHistory is the ordered message log of one conversation plus its
// rolling summary state. Mutate only through AddMessage and UpdateSummary so
// the trim and summary invariants hold:
//
//   - a completed history never exceeds MaxTurns*2 messages; overflow trims
//     the oldest messages and invalidates the summary (it may reference
//     trimmed content). The trim waits for the turn to complete, so a pending
//     user message can exceed the bound by one and still be popped cleanly.
//   - Summary == "" exactly when SummaryTurn == 0
type ConversationHistory struct {
	ConversationID string                `json:"conversationId"`
	Messages       []ConversationMessage `json:"messages"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
	Metadata       map[string]any        `json:"metadata"`
	MaxTurns       int                   `json:"maxTurns"`
	Summary        string                `json:"summary"`
	SummaryTurn    int                   `json:"summaryTurn"`
}

// NewConversationHistory creates an empty history.
func NewConversationHistory(id string, maxTurns int) *ConversationHistory {
	now := time.Now()
	return &ConversationHistory{
		ConversationID: id,
		CreatedAt:      now,
		UpdatedAt:      now,
		Metadata:       map[string]any{},
		MaxTurns:       maxTurns,
	}
}

// AddMessage appends a message and enforces the history bounds. When the log
// grows past MaxTurns*2 messages, only the most recent MaxTurns*2 are kept and
// the summary is cleared, since it may cover trimmed content. Trimming only
// runs once the appended message completes a turn: a pending user message must
// stay removable without disturbing earlier messages or the summary, in case
// the reply never arrives and the append is rolled back.
func (h *ConversationHistory) AddMessage(msg ConversationMessage) {
	h.Messages = append(h.Messages, msg)
	h.UpdatedAt = time.Now()

	if limit := h.MaxTurns * 2; h.MaxTurns > 0 && len(h.Messages) > limit && h.LastTurnComplete() {
		h.Messages = append([]ConversationMessage(nil), h.Messages[len(h.Messages)-limit:]...)
		h.Summary = ""
		h.SummaryTurn = 0
	}
}

// UpdateSummary commits a new rolling summary covering the first turn turns.
func (h *ConversationHistory) UpdateSummary(summary string, turn int) {
	h.Summary = summary
	h.SummaryTurn = turn
	h.UpdatedAt = time.Now()
}

// Turns returns the number of turns in the log, counting a turn as a
// user/assistant message pair. A trailing unanswered user message does not
// count as a turn.
func (h *ConversationHistory) Turns() int {
	return len(h.Messages) / 2
}

// LastTurnComplete reports whether the log ends on a completed turn, i.e. the
// most recent message is an assistant reply. Summarization and conditional
// persistence key off this, never off raw role inspection at call sites.
func (h *ConversationHistory) LastTurnComplete() bool {
	if len(h.Messages) == 0 {
		return false
	}
	return h.Messages[len(h.Messages)-1].Role == RoleAssistant
}

// MessagesSinceSummary returns the messages appended after the turns covered
// by the summary, or all messages when no summary exists.
func (h *ConversationHistory) MessagesSinceSummary() []ConversationMessage {
	if h.Summary == "" {
		return h.Messages
	}
	idx := h.SummaryTurn * 2
	if idx > len(h.Messages) {
		idx = len(h.Messages)
	}
	return h.Messages[idx:]
}

// RecentMessages returns at most the last maxTurns turns of messages.
// maxTurns <= 0 falls back to the history's own MaxTurns.
func (h *ConversationHistory) RecentMessages(maxTurns int) []ConversationMessage {
	if maxTurns <= 0 {
		maxTurns = h.MaxTurns
	}
	limit := maxTurns * 2
	if limit <= 0 || len(h.Messages) <= limit {
		return h.Messages
	}
	return h.Messages[len(h.Messages)-limit:]
}

// ConversationIndexEntry is the summary record kept in the conversation index
// for listing and searching without loading full histories.
type ConversationIndexEntry struct {
	ConversationID string         `json:"conversationId"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	TotalTurns     int            `json:"totalTurns"`
	StorageLocator string         `json:"storageLocator"`
	Metadata       map[string]any `json:"metadata"`
}
