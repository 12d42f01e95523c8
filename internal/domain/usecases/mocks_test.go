package usecases

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// mockIndex implements ports.VectorIndex in memory for testing.
type mockIndex struct {
	chunks  []entities.Chunk
	nextSeq int
	addErr  error
	delErr  error
}

func (m *mockIndex) Add(ctx context.Context, inputs []entities.ChunkInput) ([]string, error) {
	if m.addErr != nil {
		return nil, m.addErr
	}
	ids := make([]string, len(inputs))
	for i, in := range inputs {
		m.nextSeq++
		id := fmt.Sprintf("doc_%d_test", m.nextSeq)
		ids[i] = id
		meta := entities.CloneMetadata(in.Metadata)
		meta[entities.IDMetadataKey] = id
		m.chunks = append(m.chunks, entities.Chunk{ID: id, Text: in.Text, Metadata: meta})
	}
	return ids, nil
}

func (m *mockIndex) Search(ctx context.Context, query string, topK int, filter map[string]any) ([]entities.ScoredChunk, error) {
	var results []entities.ScoredChunk
	for _, c := range m.chunks {
		if topK > 0 && len(results) >= topK {
			break
		}
		results = append(results, entities.ScoredChunk{Chunk: c, Score: 0.9})
	}
	return results, nil
}

func (m *mockIndex) Delete(ctx context.Context, ids []string) error {
	if m.delErr != nil {
		return m.delErr
	}
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		remove := false
		for _, id := range ids {
			if c.ID == id {
				remove = true
				break
			}
		}
		if !remove {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

func (m *mockIndex) Count() int { return len(m.chunks) }

// mockLLM implements ports.LLMService. generateFn lets tests script responses
// per prompt; the default echoes a canned answer.
type mockLLM struct {
	generateFn func(prompt string) (string, error)
	calls      []string
}

func (m *mockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.calls = append(m.calls, prompt)
	if m.generateFn != nil {
		return m.generateFn(prompt)
	}
	return "mock answer", nil
}

func (m *mockLLM) GenerateStream(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	answer, err := m.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	ch := make(chan ports.StreamToken, len(answer)+1)
	for _, word := range strings.SplitAfter(answer, " ") {
		ch <- ports.StreamToken{Content: word}
	}
	ch <- ports.StreamToken{Done: true}
	close(ch)
	return ch, nil
}

// mockConvStore implements ports.ConversationStore in memory.
type mockConvStore struct {
	mu      sync.Mutex
	saved   map[string]*entities.ConversationHistory
	saveErr error
}

func newMockConvStore() *mockConvStore {
	return &mockConvStore{saved: map[string]*entities.ConversationHistory{}}
}

func (m *mockConvStore) Save(h *entities.ConversationHistory) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	cp.Messages = append([]entities.ConversationMessage(nil), h.Messages...)
	m.saved[h.ConversationID] = &cp
	return nil
}

func (m *mockConvStore) Load(id string) (*entities.ConversationHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.saved[id]
	if !ok {
		return nil, nil
	}
	cp := *h
	cp.Messages = append([]entities.ConversationMessage(nil), h.Messages...)
	return &cp, nil
}

func (m *mockConvStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, id)
	return nil
}

func (m *mockConvStore) List() ([]entities.ConversationIndexEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []entities.ConversationIndexEntry
	for id, h := range m.saved {
		entries = append(entries, entities.ConversationIndexEntry{
			ConversationID: id,
			TotalTurns:     h.Turns(),
			Metadata:       h.Metadata,
		})
	}
	return entries, nil
}

func (m *mockConvStore) Search(query string, maxResults int) ([]entities.ConversationIndexEntry, error) {
	entries, _ := m.List()
	var results []entities.ConversationIndexEntry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.ConversationID), strings.ToLower(query)) {
			results = append(results, e)
		}
	}
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// mockLoader implements ports.DocumentLoader with canned content per path.
type mockLoader struct {
	docs map[string]string
}

func (m *mockLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	content, ok := m.docs[path]
	if !ok {
		return nil, fmt.Errorf("no such document: %s", path)
	}
	return &entities.Document{ID: path, Name: path, Path: path, Content: content}, nil
}

func (m *mockLoader) SupportedExtensions() []string { return []string{".txt"} }
