package api

import (
	"encoding/json"
	"net/http"
)

// handleLiveness implements "health: liveness" — the process is up and
// accepting connections; it does not check downstream dependencies.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadiness implements "health: readiness" — checks every configured
// storage backend via CheckConnectivity.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := s.Storage.CheckConnectivity(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// APIKeyRequest is the JSON body for POST /api/v1/health/api-key.
type APIKeyRequest struct {
	Key string `json:"key"`
}

// handleSetAPIKey implements "health: set API key".
func (s *Server) handleSetAPIKey(w http.ResponseWriter, r *http.Request) {
	var req APIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	if err := s.Storage.SetRianAPIKey(r.Context(), req.Key); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

// handleGetAPIKey implements "health: get API key". The key is returned
// masked; callers that need the raw value use an authenticated internal
// path, not this endpoint.
func (s *Server) handleGetAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.Storage.GetRianAPIKey(r.Context())
	if err != nil {
		writeError(w, http.StatusNotFound, "no api key configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": maskSecret(key)})
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
