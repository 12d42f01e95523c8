package entities

import (
	"testing"
	"time"
)

func TestDocument_Creation(t *testing.T) {
	doc := Document{
		ID:        "doc-123",
		Name:      "test.md",
		Path:      "/tmp/test.md",
		Content:   "Hello world",
		CreatedAt: time.Now(),
	}

	if doc.ID != "doc-123" {
		t.Errorf("expected ID doc-123, got %s", doc.ID)
	}
	if doc.Name != "test.md" {
		t.Errorf("expected name test.md, got %s", doc.Name)
	}
}

func TestChunk_WithVector(t *testing.T) {
	chunk := Chunk{
		ID:       "doc_1_ab12cd34",
		Text:     "some text",
		Vector:   []float32{0.1, 0.2, 0.3},
		Metadata: map[string]any{"source": "notes.txt"},
	}

	if len(chunk.Vector) != 3 {
		t.Errorf("expected 3 vector dims, got %d", len(chunk.Vector))
	}
}

func TestScoredChunk_Score(t *testing.T) {
	result := ScoredChunk{
		Chunk: Chunk{ID: "doc_1_ab12cd34", Text: "test"},
		Score: 0.95,
	}

	if result.Score < 0.9 {
		t.Error("expected high score")
	}
}

func TestChatResponse_WithSources(t *testing.T) {
	resp := ChatResponse{
		Answer: "The answer is 42",
		Sources: []ScoredChunk{
			{Chunk: Chunk{ID: "doc_7_deadbeef"}, Score: 0.9},
		},
	}

	if resp.Answer == "" {
		t.Error("answer should not be empty")
	}
	if len(resp.Sources) == 0 {
		t.Error("sources should not be empty")
	}
}

func TestCloneMetadata(t *testing.T) {
	original := map[string]any{"a": 1}
	clone := CloneMetadata(original)
	clone["b"] = 2

	if _, ok := original["b"]; ok {
		t.Error("clone mutation leaked into original")
	}
	if CloneMetadata(nil) == nil {
		t.Error("clone of nil should be an empty map, not nil")
	}
}
