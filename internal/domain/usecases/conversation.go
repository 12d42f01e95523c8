package usecases

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// ConversationManager owns conversation lifecycles: creation, cached access,
// message appends with conditional persistence, and deletion.
//
// The cache map is guarded internally, so operations on distinct
// conversations may run concurrently. Histories themselves are not: callers
// serialize all operations touching one conversation id (the HTTP server
// holds a per-conversation lock across each turn, the TUI accepts one turn
// at a time).
type ConversationManager struct {
	mu           sync.Mutex // guards cache
	store        ports.ConversationStore
	cache        map[string]*entities.ConversationHistory
	maxTurns     int
	autoSave     bool
	saveInterval int
}

// NewConversationManager creates a ConversationManager. saveInterval is
// measured in completed turns; <= 0 means save on every completed turn.
func NewConversationManager(store ports.ConversationStore, maxTurns int, autoSave bool, saveInterval int) *ConversationManager {
	if maxTurns <= 0 {
		maxTurns = 30
	}
	if saveInterval <= 0 {
		saveInterval = 1
	}
	return &ConversationManager{
		store:        store,
		cache:        map[string]*entities.ConversationHistory{},
		maxTurns:     maxTurns,
		autoSave:     autoSave,
		saveInterval: saveInterval,
	}
}

// CreateConversation creates a new conversation. An empty id generates one
// with a time-ordered prefix and a random suffix.
func (m *ConversationManager) CreateConversation(id string) (string, error) {
	if id == "" {
		id = generateConversationID()
	}
	history := entities.NewConversationHistory(id, m.maxTurns)
	m.mu.Lock()
	m.cache[id] = history
	m.mu.Unlock()

	if m.autoSave {
		if err := m.store.Save(history); err != nil {
			return "", fmt.Errorf("saving new conversation: %w", err)
		}
	}
	return id, nil
}

// GetConversation returns the history for id, cache-first. Returns
// (nil, nil) when the conversation does not exist anywhere.
func (m *ConversationManager) GetConversation(id string) (*entities.ConversationHistory, error) {
	m.mu.Lock()
	h, ok := m.cache[id]
	m.mu.Unlock()
	if ok {
		return h, nil
	}
	h, err := m.store.Load(id)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, nil
	}
	m.mu.Lock()
	// A concurrent load may have cached the history first; keep that copy so
	// every caller shares one instance.
	if cached, ok := m.cache[id]; ok {
		h = cached
	} else {
		m.cache[id] = h
	}
	m.mu.Unlock()
	return h, nil
}

// AddMessage appends a message to an existing conversation and persists the
// history when a completed turn lands on the save interval. Incomplete turns
// (a trailing user message) are never persisted by this path.
func (m *ConversationManager) AddMessage(id, role, content string, metadata map[string]any, knowledgeSources []string) error {
	history, err := m.GetConversation(id)
	if err != nil {
		return err
	}
	if history == nil {
		return fmt.Errorf("%w: conversation %s", entities.ErrNotFound, id)
	}

	history.AddMessage(entities.ConversationMessage{
		Role:             role,
		Content:          content,
		Timestamp:        time.Now(),
		Metadata:         metadata,
		KnowledgeSources: knowledgeSources,
	})

	if err := m.persistCompletedTurn(history); err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

// persistCompletedTurn saves the history when auto-save is enabled and the
// completed-turn count lands on the save interval. Histories ending on an
// unanswered user message are never written.
func (m *ConversationManager) persistCompletedTurn(history *entities.ConversationHistory) error {
	if !m.autoSave || !history.LastTurnComplete() || history.Turns()%m.saveInterval != 0 {
		return nil
	}
	return m.store.Save(history)
}

// SaveConversation persists the full history unconditionally. A warning no-op
// when the conversation is absent.
func (m *ConversationManager) SaveConversation(id string) error {
	history, err := m.GetConversation(id)
	if err != nil {
		return err
	}
	if history == nil {
		slog.Warn("conversation: save of unknown conversation skipped", "id", id)
		return nil
	}
	return m.store.Save(history)
}

// DeleteConversation removes a conversation from cache and durable storage.
// Idempotent.
func (m *ConversationManager) DeleteConversation(id string) error {
	m.mu.Lock()
	delete(m.cache, id)
	m.mu.Unlock()
	return m.store.Delete(id)
}

// ListConversations returns index entries for all stored conversations.
func (m *ConversationManager) ListConversations() ([]entities.ConversationIndexEntry, error) {
	return m.store.List()
}

// SearchConversations finds conversations by id or title substring.
func (m *ConversationManager) SearchConversations(query string, maxResults int) ([]entities.ConversationIndexEntry, error) {
	return m.store.Search(query, maxResults)
}

// generateConversationID builds an id with a sortable timestamp prefix and a
// random suffix, e.g. conv_20260830_142501_9f1c04aa.
func generateConversationID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("conv_%s_%s", time.Now().Format("20060102_150405"), suffix)
}
