package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/querent-ai/querent-go/internal/insight"
)

// handleInsightInstalled implements "insight: list installed".
func (s *Server) handleInsightInstalled(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Insight.Installed())
}

// InsightSessionStartRequest is the JSON body for POST /api/v1/insight/sessions.
type InsightSessionStartRequest struct {
	SessionID    string         `json:"session_id"`
	PluginID     string         `json:"plugin_id"`
	CollectionID string         `json:"collection_id"`
	Options      map[string]any `json:"options,omitempty"`
}

// handleInsightSessionStart implements "insight: session create".
func (s *Server) handleInsightSessionStart(w http.ResponseWriter, r *http.Request) {
	var req InsightSessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.Insight.Start(r.Context(), insight.AnalystRequest{
		SessionID:    req.SessionID,
		PluginID:     req.PluginID,
		CollectionID: req.CollectionID,
		Options:      req.Options,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

// handleInsightSessionStop implements "insight: session stop".
func (s *Server) handleInsightSessionStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Insight.Stop(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "stopped"})
}

// handleInsightSessionList implements "insight: session list".
func (s *Server) handleInsightSessionList(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Insight.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// InsightPromptRequest is the JSON body for POST .../prompt.
type InsightPromptRequest struct {
	Text string `json:"text"`
}

// handleInsightPrompt implements "insight: prompt".
func (s *Server) handleInsightPrompt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req InsightPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := s.Insight.Prompt(r.Context(), id, req.Text)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
