// Package convstore provides the file-based conversation store.
// Each conversation lives in its own directory as a single JSON document;
// a co-located index file supports listing and searching without loading
// full histories.
package convstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

const (
	historyFileName = "history.json"
	indexFileName   = "index.json"
)

// indexDocument is the on-disk shape of the conversation index. It is
// rewritten in full on every update; there is no incremental patching.
type indexDocument struct {
	Conversations map[string]entities.ConversationIndexEntry `json:"conversations"`
	LastUpdated   time.Time                                  `json:"lastUpdated"`
}

// historyDocument is the on-disk shape of one conversation record.
type historyDocument struct {
	entities.ConversationHistory
	TotalTurns int `json:"totalTurns"`
}

// FileStore implements ports.ConversationStore on the local filesystem.
// It assumes a single writer process per storage directory.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a conversation store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating conversation directory: %v", entities.ErrPersistence, err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the full history document and rewrites the index entry.
func (s *FileStore) Save(history *entities.ConversationHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	convDir := filepath.Join(s.dir, history.ConversationID)
	if err := os.MkdirAll(convDir, 0o755); err != nil {
		return fmt.Errorf("%w: creating conversation directory: %v", entities.ErrPersistence, err)
	}

	doc := historyDocument{ConversationHistory: *history, TotalTurns: history.Turns()}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding history: %v", entities.ErrPersistence, err)
	}
	if err := os.WriteFile(filepath.Join(convDir, historyFileName), data, 0o644); err != nil {
		return fmt.Errorf("%w: writing history: %v", entities.ErrPersistence, err)
	}

	idx := s.loadIndex()
	idx.Conversations[history.ConversationID] = entities.ConversationIndexEntry{
		ConversationID: history.ConversationID,
		CreatedAt:      history.CreatedAt,
		UpdatedAt:      history.UpdatedAt,
		TotalTurns:     history.Turns(),
		StorageLocator: filepath.Join(history.ConversationID, historyFileName),
		Metadata:       history.Metadata,
	}
	return s.saveIndex(idx)
}

// Load reads a history by id. A missing record yields (nil, nil).
func (s *FileStore) Load(conversationID string) (*entities.ConversationHistory, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, conversationID, historyFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading history: %v", entities.ErrPersistence, err)
	}
	var doc historyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding history %s: %v", entities.ErrPersistence, conversationID, err)
	}
	history := doc.ConversationHistory
	if history.Metadata == nil {
		history.Metadata = map[string]any{}
	}
	return &history, nil
}

// Delete removes the record directory and its index entry. Idempotent.
func (s *FileStore) Delete(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(s.dir, conversationID)); err != nil {
		return fmt.Errorf("%w: removing conversation: %v", entities.ErrPersistence, err)
	}
	idx := s.loadIndex()
	if _, ok := idx.Conversations[conversationID]; !ok {
		return nil
	}
	delete(idx.Conversations, conversationID)
	return s.saveIndex(idx)
}

// List returns all index entries ordered by creation time.
func (s *FileStore) List() ([]entities.ConversationIndexEntry, error) {
	s.mu.Lock()
	idx := s.loadIndex()
	s.mu.Unlock()

	entries := make([]entities.ConversationIndexEntry, 0, len(idx.Conversations))
	for _, e := range idx.Conversations {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ConversationID < entries[j].ConversationID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// Search matches the query as a case-insensitive substring of the
// conversation id or its title metadata. Not semantic.
func (s *FileStore) Search(query string, maxResults int) ([]entities.ConversationIndexEntry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	q := strings.ToLower(query)
	var results []entities.ConversationIndexEntry
	for _, e := range entries {
		title, _ := e.Metadata["title"].(string)
		if strings.Contains(strings.ToLower(e.ConversationID), q) ||
			(title != "" && strings.Contains(strings.ToLower(title), q)) {
			results = append(results, e)
			if len(results) >= maxResults {
				break
			}
		}
	}
	return results, nil
}

// loadIndex reads the index document, falling back to an empty index on a
// missing or corrupt file. Callers hold the mutex.
func (s *FileStore) loadIndex() *indexDocument {
	idx := &indexDocument{Conversations: map[string]entities.ConversationIndexEntry{}}
	data, err := os.ReadFile(filepath.Join(s.dir, indexFileName))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("convstore: unreadable index, starting fresh", "err", err)
		}
		return idx
	}
	if err := json.Unmarshal(data, idx); err != nil {
		slog.Warn("convstore: corrupt index, starting fresh", "err", err)
		return &indexDocument{Conversations: map[string]entities.ConversationIndexEntry{}}
	}
	if idx.Conversations == nil {
		idx.Conversations = map[string]entities.ConversationIndexEntry{}
	}
	return idx
}

// saveIndex rewrites the index document in full. Callers hold the mutex.
func (s *FileStore) saveIndex(idx *indexDocument) error {
	idx.LastUpdated = time.Now()
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding index: %v", entities.ErrPersistence, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, indexFileName), data, 0o644); err != nil {
		return fmt.Errorf("%w: writing index: %v", entities.ErrPersistence, err)
	}
	return nil
}

var _ ports.ConversationStore = (*FileStore)(nil)
