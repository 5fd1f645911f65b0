package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/apexmedia/cdn-sync-agent/internal/cdn"
	"github.com/apexmedia/cdn-sync-agent/internal/engine"
)

// Queue is the engine surface the handlers need.
type Queue interface {
	Enqueue(sessionID string, kind engine.Kind, contentType string, payload map[string]any)
	Status() engine.Status
}

// ContentLister is the CDN surface the handlers need.
type ContentLister interface {
	ListContents(ctx context.Context, path string) ([]cdn.ContentItem, error)
}

type Server struct {
	queue     Queue
	contents  ContentLister
	authToken string
	logger    *zap.Logger
}

func NewServer(queue Queue, contents ContentLister, authToken string, logger *zap.Logger) *Server {
	return &Server{
		queue:     queue,
		contents:  contents,
		authToken: authToken,
		logger:    logger,
	}
}

type enqueueRequest struct {
	Kind        string         `json:"kind"`
	ContentType string         `json:"contentType"`
	Payload     map[string]any `json:"payload"`
}

// handleEnqueue accepts one operation and returns immediately; delivery
// is decoupled in time and failures never surface here.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionID is required")
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Kind == "" {
		writeError(w, http.StatusBadRequest, "kind is required")
		return
	}

	s.queue.Enqueue(sessionID, engine.Kind(req.Kind), req.ContentType, req.Payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.queue.Status())
}

type contentsResponse struct {
	Status   string            `json:"status"`
	Contents []cdn.ContentItem `json:"contents,omitempty"`
	Message  string            `json:"message,omitempty"`
}

func (s *Server) handleListContents(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}

	items, err := s.contents.ListContents(r.Context(), path)
	if err != nil {
		s.logger.Warn("listing contents failed", zap.String("path", path), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(contentsResponse{Status: "error", Message: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(contentsResponse{Status: "success", Contents: items})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": msg})
}
