package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/querent-ai/querent-go/internal/discovery"
)

// DiscoverySessionStartRequest is the JSON body for POST /api/v1/discovery/sessions.
type DiscoverySessionStartRequest struct {
	SessionID    string `json:"session_id"`
	CollectionID string `json:"collection_id"`
	Mode         string `json:"mode"`
	TopK         int    `json:"top_k,omitempty"`
	Depth        int    `json:"depth,omitempty"`
}

func parseMode(s string) (discovery.Mode, bool) {
	switch s {
	case "retriever", "":
		return discovery.ModeRetriever, true
	case "traverser":
		return discovery.ModeTraverser, true
	default:
		return 0, false
	}
}

// handleDiscoverySessionStart implements "discovery: session create".
func (s *Server) handleDiscoverySessionStart(w http.ResponseWriter, r *http.Request) {
	var req DiscoverySessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, ok := parseMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown discovery mode")
		return
	}

	id, err := s.Discovery.Start(r.Context(), discovery.SessionRequest{
		SessionID:    req.SessionID,
		CollectionID: req.CollectionID,
		Mode:         mode,
		TopK:         req.TopK,
		Depth:        req.Depth,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

// handleDiscoverySessionStop implements "discovery: session stop".
func (s *Server) handleDiscoverySessionStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Discovery.Stop(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "stopped"})
}

// handleDiscoverySessionList implements "discovery: session list".
func (s *Server) handleDiscoverySessionList(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Discovery.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// DiscoverySearchRequest is the JSON body for POST .../search, and also
// accepted as the "q" query parameter for GET .../search.
type DiscoverySearchRequest struct {
	Query string `json:"query"`
}

// handleDiscoverySearch implements "discovery: search (POST/GET)".
func (s *Server) handleDiscoverySearch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var query string
	switch r.Method {
	case http.MethodGet:
		query = r.URL.Query().Get("q")
	default:
		var req DiscoverySearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		query = req.Query
	}
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := s.Discovery.Search(r.Context(), id, query)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
