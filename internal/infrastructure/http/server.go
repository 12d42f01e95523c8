// Package http provides the JSON API server: query, chat (blocking and SSE
// streaming), conversation management, document ingestion, and search.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
	"github.com/0xcro3dile/ragchat-go/internal/domain/usecases"
)

// Server is the HTTP server for the assistant API. net/http serves every
// request on its own goroutine, so the server serializes conversation access
// itself: each handler that reads or mutates a conversation holds that
// conversation's lock for the duration of the request (streamed turns hold it
// until the stream finishes and the turn is persisted).
type Server struct {
	query         *usecases.QueryUseCase
	ingest        *usecases.IngestUseCase
	assistant     *usecases.Assistant
	conversations *usecases.ConversationManager
	convLocks     conversationLocks
	addr          string
}

// conversationLocks hands out one mutex per conversation id.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the lock for id and returns its release func.
func (l *conversationLocks) lock(id string) func() {
	l.mu.Lock()
	cl, ok := l.locks[id]
	if !ok {
		cl = &sync.Mutex{}
		l.locks[id] = cl
	}
	l.mu.Unlock()
	cl.Lock()
	return cl.Unlock
}

// NewServer creates a new HTTP server.
func NewServer(
	query *usecases.QueryUseCase,
	ingest *usecases.IngestUseCase,
	assistant *usecases.Assistant,
	conversations *usecases.ConversationManager,
	addr string,
) *Server {
	return &Server{
		query:         query,
		ingest:        ingest,
		assistant:     assistant,
		conversations: conversations,
		convLocks:     conversationLocks{locks: map[string]*sync.Mutex{}},
		addr:          addr,
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      corsMiddleware(loggingMiddleware(s.Handler())),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 300 * time.Second, // streaming responses
	}

	slog.Info("http: server starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /api/query/stream", s.handleQueryStream)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("POST /api/documents", s.handleAddDocuments)
	mux.HandleFunc("DELETE /api/documents", s.handleDeleteDocuments)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	return mux
}

// chunkView is the wire shape of a search hit.
type chunkView struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

func toChunkViews(sources []entities.ScoredChunk) []chunkView {
	views := make([]chunkView, len(sources))
	for i, s := range sources {
		views[i] = chunkView{
			ID:       s.Chunk.ID,
			Text:     s.Chunk.Text,
			Score:    s.Score,
			Metadata: s.Chunk.Metadata,
		}
	}
	return views
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query  string         `json:"query"`
		Filter map[string]any `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}

	resp, err := s.query.Query(r.Context(), req.Query, req.Filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":  resp.Answer,
		"sources": toChunkViews(resp.Sources),
	})
}

func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}

	flusher, ok := beginSSE(w)
	if !ok {
		return
	}

	ch, _, err := s.query.StreamQuery(r.Context(), query, nil)
	if err != nil {
		sendSSE(w, flusher, map[string]any{"error": err.Error(), "done": true})
		return
	}
	forwardStream(w, flusher, ch)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string         `json:"conversationId"`
		Message        string         `json:"message"`
		Filter         map[string]any `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConversationID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "conversationId and message required")
		return
	}

	defer s.convLocks.lock(req.ConversationID)()
	resp, err := s.assistant.Chat(r.Context(), req.ConversationID, req.Message, req.Filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversationId": req.ConversationID,
		"answer":         resp.Answer,
		"sources":        toChunkViews(resp.Sources),
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")
	message := r.URL.Query().Get("message")
	if conversationID == "" || message == "" {
		writeError(w, http.StatusBadRequest, "conversationId and message required")
		return
	}

	flusher, ok := beginSSE(w)
	if !ok {
		return
	}

	// Held until the stream drains: the turn is only finalized and persisted
	// once the token channel closes.
	defer s.convLocks.lock(conversationID)()
	ch, _, err := s.assistant.StreamChat(r.Context(), conversationID, message, nil)
	if err != nil {
		sendSSE(w, flusher, map[string]any{"error": err.Error(), "done": true})
		return
	}
	forwardStream(w, flusher, ch)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	var (
		entries []entities.ConversationIndexEntry
		err     error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		entries, err = s.conversations.SearchConversations(q, maxResults)
	} else {
		entries, err = s.conversations.ListConversations()
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []entities.ConversationIndexEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": entries})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	// Body is optional; an empty body creates a conversation with a
	// generated id.
	json.NewDecoder(r.Body).Decode(&req)

	if req.ConversationID != "" {
		defer s.convLocks.lock(req.ConversationID)()
	}
	id, err := s.conversations.CreateConversation(req.ConversationID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"conversationId": id})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	defer s.convLocks.lock(r.PathValue("id"))()
	history, err := s.conversations.GetConversation(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if history == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	defer s.convLocks.lock(r.PathValue("id"))()
	if err := s.conversations.DeleteConversation(r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths    []string       `json:"paths"`
		Text     string         `json:"text"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (len(req.Paths) == 0 && req.Text == "") {
		writeError(w, http.StatusBadRequest, "paths or text required")
		return
	}

	var (
		ids []string
		err error
	)
	if req.Text != "" {
		ids, err = s.ingest.AddText(r.Context(), req.Text, req.Metadata)
	} else {
		ids, err = s.ingest.AddDocuments(r.Context(), req.Paths, req.Metadata)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (s *Server) handleDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}
	if err := s.ingest.DeleteDocuments(r.Context(), req.IDs); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}
	topK, _ := strconv.Atoi(r.URL.Query().Get("topK"))

	results, err := s.query.Search(r.Context(), query, topK, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": toChunkViews(results)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"chunks": s.ingest.Count(),
	})
}

func beginSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}

func forwardStream(w http.ResponseWriter, flusher http.Flusher, ch <-chan ports.StreamToken) {
	for token := range ch {
		if token.Error != nil {
			sendSSE(w, flusher, map[string]any{"error": token.Error.Error(), "done": true})
			return
		}
		sendSSE(w, flusher, map[string]any{"content": token.Content, "done": token.Done})
	}
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, data map[string]any) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the domain error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entities.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entities.ErrConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, entities.ErrEmbedding), errors.Is(err, entities.ErrGeneration):
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http: request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
